package catalog

import (
	"fmt"
	"time"
)

// Channel is one private broadcast channel access can be granted to.
type Channel struct {
	Key  string
	ID   int64
	Name string
}

// Plan is a purchasable tier. ChannelKeys is ordered: grants are issued in
// this order.
type Plan struct {
	ID           string
	Name         string
	PriceUSD     float64
	DurationDays int
	LinkID       string
	ChannelKeys  []string
}

func (p Plan) Duration() time.Duration {
	return time.Duration(p.DurationDays) * 24 * time.Hour
}

// Catalog is the immutable plan/channel configuration, validated at startup.
type Catalog struct {
	channels   map[string]Channel
	plans      []Plan
	byID       map[string]*Plan
	byName     map[string]*Plan
	channelSeq []Channel
}

func New(channels []Channel, plans []Plan) (*Catalog, error) {
	c := &Catalog{
		channels: make(map[string]Channel, len(channels)),
		byID:     make(map[string]*Plan, len(plans)),
		byName:   make(map[string]*Plan, len(plans)),
	}
	for _, ch := range channels {
		if ch.Key == "" {
			return nil, fmt.Errorf("catalog: channel with empty key")
		}
		if ch.ID == 0 {
			return nil, fmt.Errorf("catalog: channel %s has no chat id", ch.Key)
		}
		if _, dup := c.channels[ch.Key]; dup {
			return nil, fmt.Errorf("catalog: duplicate channel key %s", ch.Key)
		}
		c.channels[ch.Key] = ch
		c.channelSeq = append(c.channelSeq, ch)
	}
	c.plans = make([]Plan, len(plans))
	copy(c.plans, plans)
	for i := range c.plans {
		p := &c.plans[i]
		if p.ID == "" || p.Name == "" {
			return nil, fmt.Errorf("catalog: plan %q/%q missing id or name", p.ID, p.Name)
		}
		if p.DurationDays <= 0 {
			return nil, fmt.Errorf("catalog: plan %s has non-positive duration", p.ID)
		}
		if p.PriceUSD <= 0 {
			return nil, fmt.Errorf("catalog: plan %s has non-positive price", p.ID)
		}
		if len(p.ChannelKeys) == 0 {
			return nil, fmt.Errorf("catalog: plan %s has no channels", p.ID)
		}
		for _, key := range p.ChannelKeys {
			if _, ok := c.channels[key]; !ok {
				return nil, fmt.Errorf("catalog: plan %s references unknown channel %s", p.ID, key)
			}
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate plan id %s", p.ID)
		}
		if _, dup := c.byName[p.Name]; dup {
			return nil, fmt.Errorf("catalog: duplicate plan name %s", p.Name)
		}
		c.byID[p.ID] = p
		c.byName[p.Name] = p
	}
	return c, nil
}

func (c *Catalog) PlanByID(id string) (Plan, bool) {
	p, ok := c.byID[id]
	if !ok {
		return Plan{}, false
	}
	return *p, true
}

func (c *Catalog) PlanByName(name string) (Plan, bool) {
	p, ok := c.byName[name]
	if !ok {
		return Plan{}, false
	}
	return *p, true
}

func (c *Catalog) Plans() []Plan {
	out := make([]Plan, len(c.plans))
	copy(out, c.plans)
	return out
}

func (c *Catalog) Channels() []Channel {
	out := make([]Channel, len(c.channelSeq))
	copy(out, c.channelSeq)
	return out
}

// PlanChannels resolves a plan's channel keys to channels, in plan order.
func (c *Catalog) PlanChannels(p Plan) []Channel {
	out := make([]Channel, 0, len(p.ChannelKeys))
	for _, key := range p.ChannelKeys {
		if ch, ok := c.channels[key]; ok {
			out = append(out, ch)
		}
	}
	return out
}

// Default returns the production catalog. Channel chat ids can be overridden
// via configuration before calling New.
func Default(channelIDs map[string]int64) (*Catalog, error) {
	channels := []Channel{
		{Key: "channel_1", ID: -1002068120499, Name: "Channel 1"},
		{Key: "channel_2", ID: -1001234567890, Name: "Channel 2"},
		{Key: "channel_3", ID: -1001234567891, Name: "Channel 3"},
		{Key: "channel_4", ID: -1001234567892, Name: "Channel 4"},
		{Key: "channel_5", ID: -1001234567893, Name: "Channel 5"},
	}
	for i := range channels {
		if id, ok := channelIDs[channels[i].Key]; ok && id != 0 {
			channels[i].ID = id
		}
	}
	plans := []Plan{
		{ID: "trial", Name: "Trial Trip", PriceUSD: 14.99, DurationDays: 7, LinkID: "LNK_O7C5LTPYFP", ChannelKeys: []string{"channel_1"}},
		{ID: "monthly", Name: "Cloudy Month", PriceUSD: 24.99, DurationDays: 30, LinkID: "LNK_52ZQ7A0I9I", ChannelKeys: []string{"channel_1", "channel_2"}},
		{ID: "vip", Name: "Frequent Flyer", PriceUSD: 49.99, DurationDays: 90, LinkID: "LNK_468D3W49LB", ChannelKeys: []string{"channel_1", "channel_2", "channel_3"}},
		{ID: "halfyear", Name: "Slam Surfer", PriceUSD: 79.99, DurationDays: 180, LinkID: "LNK_EMVGMPYMGJ", ChannelKeys: []string{"channel_1", "channel_2", "channel_3", "channel_4"}},
		{ID: "yearly", Name: "Full Year", PriceUSD: 99.99, DurationDays: 365, LinkID: "LNK_253P067SB1", ChannelKeys: []string{"channel_1", "channel_2", "channel_3", "channel_4", "channel_5"}},
		{ID: "lifetime", Name: "Forever", PriceUSD: 249.99, DurationDays: 3650, LinkID: "LNK_PNM53KLD99", ChannelKeys: []string{"channel_1", "channel_2", "channel_3", "channel_4", "channel_5"}},
	}
	return New(channels, plans)
}

// PaymentLink builds the hosted checkout URL for a plan, carrying the user
// and plan ids back to us through webhook metadata.
func PaymentLink(identityKey string, p Plan, userID int64) string {
	return fmt.Sprintf(
		"https://checkout.bold.co/payment/%s?identity_key=%s&metadata[user_id]=%d&metadata[plan_id]=%s",
		p.LinkID, identityKey, userID, p.ID,
	)
}
