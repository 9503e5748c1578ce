package analytics

import (
	"context"

	"RiskGate/internal/domain/models"
	"RiskGate/internal/services/features"
)

const multipleDevices = 3

// DeviceAnalyzer checks the device and network the request comes from.
// device_id, ip and vpn are read from request metadata.
type DeviceAnalyzer struct {
	history *History
}

func NewDeviceAnalyzer(h *History) *DeviceAnalyzer {
	return &DeviceAnalyzer{history: h}
}

func (a *DeviceAnalyzer) Name() string { return "device" }

func (a *DeviceAnalyzer) Analyze(ctx context.Context, in models.AnalysisInput, p *models.Profiles) ([]models.Flag, error) {
	sessions, err := a.history.Sessions(ctx, in.UserID, in.Now.AddDate(0, 0, -30), in.Now)
	if err != nil {
		return nil, err
	}

	dp := models.DeviceProfile{
		DeviceID: in.MetaString("device_id"),
		IP:       in.MetaString("ip"),
		VPN:      in.MetaBool("vpn"),
	}

	dayAgo := in.Now.AddDate(0, 0, -1)
	devices24h := []string{dp.DeviceID}
	ips24h := []string{dp.IP}
	known := make([]string, 0, len(sessions))
	for _, s := range sessions {
		known = append(known, s.DeviceID)
		if !s.StartedAt.Before(dayAgo) {
			devices24h = append(devices24h, s.DeviceID)
			ips24h = append(ips24h, s.IP)
		}
	}
	dp.Devices24h = features.Distinct(devices24h)
	dp.IPs24h = features.Distinct(ips24h)
	dp.KnownDevices = features.Distinct(known)
	if dp.DeviceID != "" {
		dp.NewDevice = true
		for _, d := range known {
			if d == dp.DeviceID {
				dp.NewDevice = false
				break
			}
		}
	}
	p.Device = dp

	var flags []models.Flag
	if dp.Devices24h >= multipleDevices {
		flags = append(flags, flag(models.FlagDevice, models.SeverityWarning, models.FlagMultipleDevices, 10,
			"%d devices in 24 hours", dp.Devices24h))
	}
	if dp.VPN {
		flags = append(flags, flag(models.FlagDevice, models.SeverityWarning, models.FlagVPNDetected, 10,
			"request routed through a VPN"))
	}
	if dp.NewDevice {
		flags = append(flags, flag(models.FlagDevice, models.SeverityInfo, models.FlagNewDevice, 5,
			"device %s not seen in 30 days", dp.DeviceID))
	}
	return flags, nil
}
