package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"RiskGate/internal/domain/models"
	"RiskGate/internal/domain/repository"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// balanceScale is the number of decimal places kept by the Redis balance.
// Balances are stored as integers so the Lua comparison is exact.
const balanceScale = 4

// adjustBalanceScript applies ARGV[1] to the balance only when the current
// balance is at least ARGV[2]. Returns {status, balance}: status -1 unknown
// user, 0 insufficient, 1 applied.
var adjustBalanceScript = redis.NewScript(`
local bal = redis.call("HGET", KEYS[1], "balance")
if not bal then
  return {-1, 0}
end
bal = tonumber(bal)
if bal < tonumber(ARGV[2]) then
  return {0, bal}
end
local updated = redis.call("HINCRBY", KEYS[1], "balance", ARGV[1])
return {1, updated}
`)

// RedisUserDirectory stores each user as a hash with a JSON profile and an
// integer balance in units of 10^-4.
type RedisUserDirectory struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisUserDirectory(client redis.UniversalClient, prefix string) *RedisUserDirectory {
	p := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if p == "" {
		p = "riskgate"
	}
	return &RedisUserDirectory{client: client, prefix: p + ":user"}
}

func (d *RedisUserDirectory) key(id string) string {
	return d.prefix + ":" + id
}

// Put writes the profile and overwrites the balance.
func (d *RedisUserDirectory) Put(ctx context.Context, u models.User) error {
	profile, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	err = d.client.HSet(ctx, d.key(u.ID),
		"profile", profile,
		"balance", toUnits(u.Balance),
	).Err()
	if err != nil {
		return fmt.Errorf("put user %s: %w", u.ID, err)
	}
	return nil
}

func (d *RedisUserDirectory) GetUser(ctx context.Context, id string) (*models.User, error) {
	vals, err := d.client.HMGet(ctx, d.key(id), "profile", "balance").Result()
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	raw, ok := vals[0].(string)
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, models.ErrUserNotFound)
	}
	var u models.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", id, err)
	}
	if b, ok := vals[1].(string); ok {
		units, err := decimal.NewFromString(b)
		if err != nil {
			return nil, fmt.Errorf("decode balance %s: %w", id, err)
		}
		u.Balance = fromUnits(units.IntPart())
	}
	return &u, nil
}

func (d *RedisUserDirectory) AdjustBalance(ctx context.Context, id string, delta, expectedMinBalance decimal.Decimal) (decimal.Decimal, error) {
	res, err := adjustBalanceScript.Run(ctx, d.client, []string{d.key(id)}, toUnits(delta), toUnits(expectedMinBalance)).Result()
	if err != nil {
		return decimal.Zero, fmt.Errorf("adjust balance %s: %w", id, err)
	}
	values, ok := res.([]interface{})
	if !ok || len(values) != 2 {
		return decimal.Zero, fmt.Errorf("unexpected adjust balance response shape: %T", res)
	}
	status, ok1 := values[0].(int64)
	units, ok2 := values[1].(int64)
	if !ok1 || !ok2 {
		return decimal.Zero, fmt.Errorf("unexpected adjust balance response types: %T, %T", values[0], values[1])
	}

	balance := fromUnits(units)
	switch status {
	case -1:
		return decimal.Zero, fmt.Errorf("user %s: %w", id, models.ErrUserNotFound)
	case 0:
		return balance, models.NewPipelineError(models.ErrKindInsufficientBalance, "", nil,
			fmt.Sprintf("balance %s below required %s", balance, expectedMinBalance))
	}
	return balance, nil
}

func toUnits(d decimal.Decimal) int64 {
	return d.Shift(balanceScale).IntPart()
}

func fromUnits(u int64) decimal.Decimal {
	return decimal.New(u, -balanceScale)
}

var _ repository.UserDirectory = (*RedisUserDirectory)(nil)
