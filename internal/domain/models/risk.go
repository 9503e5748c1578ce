package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type FlagType string

const (
	FlagVelocity   FlagType = "velocity"
	FlagFinancial  FlagType = "financial"
	FlagBehavioral FlagType = "behavioral"
	FlagGameplay   FlagType = "gameplay"
	FlagDevice     FlagType = "device"
	FlagCompliance FlagType = "compliance"
	FlagML         FlagType = "ml"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

type Level string

const (
	LevelMinimal  Level = "minimal"
	LevelLow      Level = "low"
	LevelModerate Level = "moderate"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
	LevelExtreme  Level = "extreme"
)

type Recommendation string

const (
	RecommendAutoApprove          Recommendation = "auto_approve"
	RecommendManualReview         Recommendation = "manual_review"
	RecommendEnhancedVerification Recommendation = "enhanced_verification"
	RecommendReject               Recommendation = "reject"
	RecommendFreezeAccount        Recommendation = "freeze_account"
)

// RequiresReview reports whether a human has to approve before processing.
func (r Recommendation) RequiresReview() bool {
	return r == RecommendManualReview || r == RecommendEnhancedVerification
}

// Blocking reports whether the recommendation stops the transaction outright.
func (r Recommendation) Blocking() bool {
	return r == RecommendReject || r == RecommendFreezeAccount
}

// Flag codes.
const (
	FlagRapidWithdrawal      = "RAPID_WITHDRAWAL"
	FlagHighVelocity         = "HIGH_VELOCITY"
	FlagHighFraudRisk        = "HIGH_FRAUD_RISK"
	FlagNoDepositHistory     = "NO_DEPOSIT_HISTORY"
	FlagLargeAmount          = "LARGE_AMOUNT"
	FlagNewAccountLargeTx    = "NEW_ACCOUNT_LARGE_TX"
	FlagRapidCycle           = "RAPID_CYCLE"
	FlagUnusualHour          = "UNUSUAL_HOUR"
	FlagLowWagering          = "LOW_WAGERING"
	FlagAbnormalWinRate      = "ABNORMAL_WIN_RATE"
	FlagMultipleDevices      = "MULTIPLE_DEVICES"
	FlagVPNDetected          = "VPN_DETECTED"
	FlagNewDevice            = "NEW_DEVICE"
	FlagKYCRequired          = "KYC_REQUIRED"
	FlagHighRiskJurisdiction = "HIGH_RISK_JURISDICTION"
	FlagPossibleStructuring  = "POSSIBLE_STRUCTURING"
)

type Flag struct {
	Type        FlagType `json:"type"`
	Severity    Severity `json:"severity"`
	Code        string   `json:"code"`
	Description string   `json:"description"`
	Score       int      `json:"score"` // weight added to the composite score
}

type Prediction struct {
	FraudProbability float64 `json:"fraud_probability"`
	AnomalyScore     float64 `json:"anomaly_score"`
	Confidence       float64 `json:"confidence"`
	Model            string  `json:"model"`
}

// RiskAssessment is immutable once produced.
type RiskAssessment struct {
	Score          int            `json:"score"` // 0..100
	Level          Level          `json:"level"`
	Flags          []Flag         `json:"flags"`
	Recommendation Recommendation `json:"recommendation"`
	Confidence     float64        `json:"confidence"` // 0..1
	Prediction     Prediction     `json:"prediction"`
	Profiles       Profiles       `json:"profiles"`
	AnalyzedAt     time.Time      `json:"analyzed_at"`
}

// HasFlag reports whether code was raised.
func (a *RiskAssessment) HasFlag(code string) bool {
	for _, f := range a.Flags {
		if f.Code == code {
			return true
		}
	}
	return false
}

// HasFlagType reports whether any flag of type t was raised.
func (a *RiskAssessment) HasFlagType(t FlagType) bool {
	for _, f := range a.Flags {
		if f.Type == t {
			return true
		}
	}
	return false
}

type Profiles struct {
	Financial  FinancialProfile  `json:"financial"`
	Behavioral BehavioralProfile `json:"behavioral"`
	Gameplay   GameplayProfile   `json:"gameplay"`
	Device     DeviceProfile     `json:"device"`
	Compliance ComplianceProfile `json:"compliance"`
}

type FinancialProfile struct {
	Balance             decimal.Decimal `json:"balance"`
	Deposits30d         decimal.Decimal `json:"deposits_30d"`
	Withdrawals30d      decimal.Decimal `json:"withdrawals_30d"`
	DepositCount30d     int             `json:"deposit_count_30d"`
	WithdrawalCount30d  int             `json:"withdrawal_count_30d"`
	LifetimeDeposits    int             `json:"lifetime_deposits"`
	AverageDeposit      decimal.Decimal `json:"average_deposit"`
	WithdrawDepositRate float64         `json:"withdraw_deposit_ratio"` // includes the candidate withdrawal
	HourlyCount         int             `json:"hourly_count"`           // same kind, includes the candidate
	HourlySum           decimal.Decimal `json:"hourly_sum"`
	AccountAgeDays      int             `json:"account_age_days"`
}

type BehavioralProfile struct {
	Sessions7d          int        `json:"sessions_7d"`
	AvgSessionMinutes   float64    `json:"avg_session_minutes"`
	UnusualHour         bool       `json:"unusual_hour"`
	LastDepositAt       *time.Time `json:"last_deposit_at,omitempty"`
	MinutesSinceDeposit float64    `json:"minutes_since_deposit"`
	WageredSinceDeposit float64    `json:"wagered_since_deposit"`
	LastDepositAmount   float64    `json:"last_deposit_amount"`
}

type GameplayProfile struct {
	Bets30d    int     `json:"bets_30d"`
	Wagered30d float64 `json:"wagered_30d"`
	Won30d     float64 `json:"won_30d"`
	WinRate    float64 `json:"win_rate"`
	// WageringRatio is wagered over deposited for the last 30 days.
	WageringRatio float64 `json:"wagering_ratio"`
}

type DeviceProfile struct {
	DeviceID     string `json:"device_id,omitempty"`
	IP           string `json:"ip,omitempty"`
	Devices24h   int    `json:"devices_24h"`
	IPs24h       int    `json:"ips_24h"`
	NewDevice    bool   `json:"new_device"`
	VPN          bool   `json:"vpn"`
	KnownDevices int    `json:"known_devices"`
}

type ComplianceProfile struct {
	KYCLevel          int    `json:"kyc_level"`
	KYCVerified       bool   `json:"kyc_verified"`
	Country           string `json:"country,omitempty"`
	HighRiskCountry   bool   `json:"high_risk_country"`
	NearThreshold24h  int    `json:"near_threshold_24h"` // deposits just under the reporting threshold
	KYCThresholdReach bool   `json:"kyc_threshold_reached"`
}

// AnalysisInput is what the risk engine evaluates. Now is the evaluation
// clock; analyzers never read the wall clock themselves.
type AnalysisInput struct {
	TransactionID string                 `json:"transaction_id"`
	UserID        string                 `json:"user_id"`
	Kind          Kind                   `json:"kind"`
	Amount        decimal.Decimal        `json:"amount"`
	Metadata      map[string]interface{} `json:"metadata"`
	Now           time.Time              `json:"now"`
}

// MetaString reads a string metadata value.
func (in AnalysisInput) MetaString(key string) string {
	s, _ := in.Metadata[key].(string)
	return s
}

// MetaBool reads a boolean metadata value; "true" strings count.
func (in AnalysisInput) MetaBool(key string) bool {
	return TransactionRequest{Metadata: in.Metadata}.MetaBool(key)
}

// Features is the flat vector handed to a Predictor.
type Features struct {
	Kind                Kind    `json:"kind"`
	Amount              float64 `json:"amount"`
	AccountAgeDays      int     `json:"account_age_days"`
	LifetimeDeposits    int     `json:"lifetime_deposits"`
	AverageDeposit      float64 `json:"average_deposit"`
	Deposits30d         float64 `json:"deposits_30d"`
	Withdrawals30d      float64 `json:"withdrawals_30d"`
	WithdrawDepositRate float64 `json:"withdraw_deposit_ratio"`
	HourlyCount         int     `json:"hourly_count"`
	Sessions7d          int     `json:"sessions_7d"`
	UnusualHour         bool    `json:"unusual_hour"`
	WinRate             float64 `json:"win_rate"`
	WageringRatio       float64 `json:"wagering_ratio"`
	Devices24h          int     `json:"devices_24h"`
	NewDevice           bool    `json:"new_device"`
	VPN                 bool    `json:"vpn"`
	KYCVerified         bool    `json:"kyc_verified"`
	HighRiskCountry     bool    `json:"high_risk_country"`
}

// NewFeatures flattens merged profiles for prediction.
func NewFeatures(in AnalysisInput, p Profiles) Features {
	amount, _ := in.Amount.Float64()
	avg, _ := p.Financial.AverageDeposit.Float64()
	dep, _ := p.Financial.Deposits30d.Float64()
	wd, _ := p.Financial.Withdrawals30d.Float64()
	return Features{
		Kind:                in.Kind,
		Amount:              amount,
		AccountAgeDays:      p.Financial.AccountAgeDays,
		LifetimeDeposits:    p.Financial.LifetimeDeposits,
		AverageDeposit:      avg,
		Deposits30d:         dep,
		Withdrawals30d:      wd,
		WithdrawDepositRate: p.Financial.WithdrawDepositRate,
		HourlyCount:         p.Financial.HourlyCount,
		Sessions7d:          p.Behavioral.Sessions7d,
		UnusualHour:         p.Behavioral.UnusualHour,
		WinRate:             p.Gameplay.WinRate,
		WageringRatio:       p.Gameplay.WageringRatio,
		Devices24h:          p.Device.Devices24h,
		NewDevice:           p.Device.NewDevice,
		VPN:                 p.Device.VPN,
		KYCVerified:         p.Compliance.KYCVerified,
		HighRiskCountry:     p.Compliance.HighRiskCountry,
	}
}
