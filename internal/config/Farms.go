package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	sdkmath "cosmossdk.io/math"
	"gopkg.in/yaml.v3"

	"github.com/dexponent/farmd/internal/types"
	"github.com/dexponent/farmd/internal/utils"
)

// FarmsFileSpec is the bring-up description read from FARMD_FARMS_FILE. Every principal
// is an address-book name, never a literal address.
type FarmsFileSpec struct {
	Asset           AssetDefinition        `yaml:"asset"`
	Adapters        []AdapterDefinition    `yaml:"adapters"`
	Owners          []string               `yaml:"owners"`
	IncentivePool   string                 `yaml:"incentive_pool"`
	ConsensusModule string                 `yaml:"consensus_module"`
	TransferFee     *TransferFeeDefinition `yaml:"transfer_fee"`
	RootFarm        *FarmDefinition        `yaml:"root_farm"`
	Farms           []FarmDefinition       `yaml:"farms"`
}

// AssetDefinition describes the underlying asset. Supply is minted to the admin at bring-up.
type AssetDefinition struct {
	Denom  string `yaml:"denom"`
	Supply string `yaml:"supply"`
}

// AdapterDefinition registers one venue. Fund seeds a lending adapter's interest pool and
// Quote names the paired token of a liquidity manager.
type AdapterDefinition struct {
	Namespace string `yaml:"namespace"`
	Name      string `yaml:"name"`
	APRBps    uint32 `yaml:"apr_bps"`
	Fund      string `yaml:"fund"`
	Quote     string `yaml:"quote"`
}

type TransferFeeDefinition struct {
	Bps       uint32 `yaml:"bps"`
	Collector string `yaml:"collector"`
}

// FarmDefinition is one farm to create. Params only carries overrides of DefaultFarmParameters.
// The root farm leaves Owner empty since the admin owns it.
type FarmDefinition struct {
	Owner       string             `yaml:"owner"`
	ClaimSymbol string             `yaml:"claim_symbol"`
	Strategy    StrategyDefinition `yaml:"strategy"`
	Params      ParamsOverride     `yaml:"params"`
	Seed        []SeedDeposit      `yaml:"seed"`
}

// StrategyDefinition selects the strategy variant. Amounts are strings so 1e18 style values survive YAML.
type StrategyDefinition struct {
	Kind           string                   `yaml:"kind"`
	RewardToken    string                   `yaml:"reward_token"`
	Selections     []types.AdapterSelection `yaml:"selections"`
	LendingAdapter string                   `yaml:"lending_adapter"`
	MinDeposit     string                   `yaml:"min_deposit"`
	MaxCapacity    string                   `yaml:"max_capacity"`
	Anchor         *AnchorDefinition        `yaml:"anchor"`
}

// AnchorDefinition configures an anchor market-making strategy.
type AnchorDefinition struct {
	FeeTier           uint32        `yaml:"fee_tier"`
	SqrtPriceX96      string        `yaml:"sqrt_price_x96"`
	UpperRange        string        `yaml:"upper_range"`
	LowerRange        string        `yaml:"lower_range"`
	QuoteToken        string        `yaml:"quote_token"`
	LiquidityManager  string        `yaml:"liquidity_manager"`
	MinLiquidity      string        `yaml:"min_liquidity"`
	RebalanceInterval time.Duration `yaml:"rebalance_interval"`
}

// SeedDeposit is an initial deposit made on behalf of an address-book account.
type SeedDeposit struct {
	Holder string `yaml:"holder"`
	Amount string `yaml:"amount"`
}

type ParamsOverride struct {
	MaturityPeriod   *time.Duration         `yaml:"maturity_period"`
	EnforceMaturity  *bool                  `yaml:"enforce_maturity"`
	ReserveRatioBps  *uint32                `yaml:"reserve_ratio_bps"`
	MinReserve       *string                `yaml:"min_reserve"`
	RebalanceStepBps *uint32                `yaml:"rebalance_step_bps"`
	EpochDuration    *time.Duration         `yaml:"epoch_duration"`
	Splits           *types.IncentiveSplits `yaml:"splits"`
}

// LoadFarmsFile reads and validates the farm definitions at path.
func LoadFarmsFile(path string) (*FarmsFileSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read farms file %s: %w", path, err)
	}
	spec, err := ParseFarmsFile(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse farms file %s: %w", path, err)
	}
	return spec, nil
}

// ParseFarmsFile decodes YAML, rejecting unknown keys.
func ParseFarmsFile(raw []byte) (*FarmsFileSpec, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	var spec FarmsFileSpec
	if err := dec.Decode(&spec); err != nil {
		return nil, err
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Validate checks everything that can be checked without the address book.
func (s *FarmsFileSpec) Validate() error {
	if s.Asset.Denom == "" {
		return errors.New("asset.denom is required")
	}
	if s.Asset.Supply != "" {
		if _, err := utils.ParseAmount(s.Asset.Supply); err != nil {
			return fmt.Errorf("asset.supply: %w", err)
		}
	}
	for i, a := range s.Adapters {
		if a.Name == "" {
			return fmt.Errorf("adapters[%d]: name is required", i)
		}
		switch a.Namespace {
		case "staking", "lending":
		case "liquidity":
			if a.Quote == "" {
				return fmt.Errorf("adapters[%d]: liquidity manager needs a quote token", i)
			}
		default:
			return fmt.Errorf("adapters[%d]: unknown namespace %q", i, a.Namespace)
		}
		if a.Fund != "" {
			if _, err := utils.ParseAmount(a.Fund); err != nil {
				return fmt.Errorf("adapters[%d].fund: %w", i, err)
			}
		}
	}
	if r := s.RootFarm; r != nil {
		if r.Owner != "" {
			return errors.New("root_farm: owner cannot be set, the admin owns the root farm")
		}
		if err := r.validate("root_farm"); err != nil {
			return err
		}
	}
	for i, f := range s.Farms {
		if f.Owner == "" {
			return fmt.Errorf("farms[%d]: owner is required", i)
		}
		if err := f.validate(fmt.Sprintf("farms[%d]", i)); err != nil {
			return err
		}
	}
	return nil
}

// validate reports errors prefixed with field, the definition's path in the file.
func (f FarmDefinition) validate(field string) error {
	if f.ClaimSymbol == "" {
		return fmt.Errorf("%s: claim_symbol is required", field)
	}
	if _, err := f.Params.Apply(DefaultFarmParameters); err != nil {
		return fmt.Errorf("%s.params: %w", field, err)
	}
	if _, err := f.Strategy.Limits(); err != nil {
		return fmt.Errorf("%s.strategy: %w", field, err)
	}
	if f.Strategy.Kind == "anchor" && f.Strategy.Anchor == nil {
		return fmt.Errorf("%s.strategy: anchor kind needs an anchor section", field)
	}
	if f.Strategy.Anchor != nil {
		if _, err := f.Strategy.Anchor.Params(); err != nil {
			return fmt.Errorf("%s.strategy.anchor: %w", field, err)
		}
	}
	for j, sd := range f.Seed {
		if _, err := utils.ParseAmount(sd.Amount); err != nil {
			return fmt.Errorf("%s.seed[%d]: %w", field, j, err)
		}
	}
	return nil
}

// Apply merges the overrides onto base and validates the result.
func (o ParamsOverride) Apply(base types.FarmParams) (types.FarmParams, error) {
	p := base
	if o.MaturityPeriod != nil {
		p.MaturityPeriod = *o.MaturityPeriod
	}
	if o.EnforceMaturity != nil {
		p.EnforceMaturity = *o.EnforceMaturity
	}
	if o.ReserveRatioBps != nil {
		p.ReserveRatioBps = *o.ReserveRatioBps
	}
	if o.MinReserve != nil {
		v, err := utils.ParseAmount(*o.MinReserve)
		if err != nil {
			return p, fmt.Errorf("min_reserve: %w", err)
		}
		p.MinReserve = v
	}
	if o.RebalanceStepBps != nil {
		p.RebalanceStepBps = *o.RebalanceStepBps
	}
	if o.EpochDuration != nil {
		p.EpochDuration = *o.EpochDuration
	}
	if o.Splits != nil {
		p.Splits = *o.Splits
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// Limits parses the strategy bounds, falling back to DefaultStrategyLimits per field.
func (d StrategyDefinition) Limits() (types.StrategyLimits, error) {
	limits := DefaultStrategyLimits
	parse := func(field, v string, dst *sdkmath.Int) error {
		if v == "" {
			return nil
		}
		amt, err := utils.ParseAmount(v)
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		*dst = amt
		return nil
	}
	if err := parse("min_deposit", d.MinDeposit, &limits.MinDeposit); err != nil {
		return limits, err
	}
	if err := parse("max_capacity", d.MaxCapacity, &limits.MaxCapacity); err != nil {
		return limits, err
	}
	if err := limits.Validate(); err != nil {
		return limits, err
	}
	return limits, nil
}

// Params parses the amounts and validates the result.
func (d AnchorDefinition) Params() (types.AnchorParams, error) {
	p := types.AnchorParams{
		FeeTier:           d.FeeTier,
		QuoteToken:        d.QuoteToken,
		LiquidityManager:  d.LiquidityManager,
		MinLiquidity:      sdkmath.ZeroInt(),
		RebalanceInterval: d.RebalanceInterval,
	}
	amounts := []struct {
		field string
		v     string
		dst   *sdkmath.Int
	}{
		{"sqrt_price_x96", d.SqrtPriceX96, &p.SqrtPriceX96},
		{"upper_range", d.UpperRange, &p.UpperRange},
		{"lower_range", d.LowerRange, &p.LowerRange},
	}
	for _, a := range amounts {
		v, err := utils.ParseAmount(a.v)
		if err != nil {
			return p, fmt.Errorf("%s: %w", a.field, err)
		}
		*a.dst = v
	}
	if d.MinLiquidity != "" {
		v, err := utils.ParseAmount(d.MinLiquidity)
		if err != nil {
			return p, fmt.Errorf("min_liquidity: %w", err)
		}
		p.MinLiquidity = v
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}
