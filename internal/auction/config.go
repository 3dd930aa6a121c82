package auction

// ConfigVersion is the schema version stamped on newly created configs.
const ConfigVersion = 1

// MaxBps is the upper bound for basis-point rates (100%).
const MaxBps = 10_000

// Config is the long-lived auction configuration for one authority/currency
// pair. It is created once by its authority and afterwards mutated only by
// OpenRound, which advances the schedule cursor and consumes a round id as
// part of the same atomic unit that creates the round.
type Config struct {
	Version          int
	Authority        string
	Moderator        string
	CurrencyMint     string
	GlobalVault      string
	FeeAccount       string
	IntervalSeconds  int64
	NextAuctionStart int64
	NextRoundID      uint64
	FeeBps           uint32
	FeeBurnBps       uint32
	MaxAuctionSlots  uint32
}

// ConfigParams are the caller-supplied fields for NewConfig.
type ConfigParams struct {
	Authority        string
	Moderator        string
	CurrencyMint     string
	FeeAccount       string
	GlobalVault      string
	IntervalSeconds  int64
	NextAuctionStart int64
	FeeBps           uint32
	FeeBurnBps       uint32
	MaxAuctionSlots  uint32
}

// NewConfig validates the fee bounds and returns a fresh config with the
// round counter initialized. Identity fields are stored verbatim; verifying
// that the caller controls them is the signing contract's job, not ours.
func NewConfig(p ConfigParams) (*Config, error) {
	if p.FeeBps > MaxBps {
		return nil, ErrInvalidFee
	}
	if p.FeeBurnBps > MaxBps {
		return nil, ErrInvalidFeeBurn
	}

	return &Config{
		Version:          ConfigVersion,
		Authority:        p.Authority,
		Moderator:        p.Moderator,
		CurrencyMint:     p.CurrencyMint,
		GlobalVault:      p.GlobalVault,
		FeeAccount:       p.FeeAccount,
		IntervalSeconds:  p.IntervalSeconds,
		NextAuctionStart: p.NextAuctionStart,
		NextRoundID:      1,
		FeeBps:           p.FeeBps,
		FeeBurnBps:       p.FeeBurnBps,
		MaxAuctionSlots:  p.MaxAuctionSlots,
	}, nil
}

// ConsumeRoundID returns the current round id and advances the counter.
func (c *Config) ConsumeRoundID() uint64 {
	id := c.NextRoundID
	c.NextRoundID++
	return id
}
