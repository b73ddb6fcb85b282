package models

// Audience groups feeding a RecipientSet.
const (
	GroupClients    = "clients"
	GroupFollowers  = "followers"
	GroupRegulators = "regulators"
)

// RecipientSet is a deduplicated list of device tokens plus, per group, how
// many recipients with a token it contributed.
type RecipientSet struct {
	Tokens []string
	Groups map[string]int
}

// NewRecipientSet builds an empty set.
func NewRecipientSet() *RecipientSet {
	return &RecipientSet{Groups: make(map[string]int)}
}

// Add merges a group into the set. Tokens already present are skipped.
func (s *RecipientSet) Add(group string, recipients []Recipient) {
	seen := make(map[string]struct{}, len(s.Tokens))
	for _, t := range s.Tokens {
		seen[t] = struct{}{}
	}
	s.Groups[group] += 0
	for _, r := range recipients {
		if r.Token == "" {
			continue
		}
		s.Groups[group]++
		if _, ok := seen[r.Token]; ok {
			continue
		}
		seen[r.Token] = struct{}{}
		s.Tokens = append(s.Tokens, r.Token)
	}
}

func (s *RecipientSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Tokens)
}

// DeliveryOutcome summarises one fan-out batch. Never persisted.
type DeliveryOutcome struct {
	Attempted int            `json:"attempted"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Groups    map[string]int `json:"groups,omitempty"`
}

// Message is one push notification: title, body and string data.
type Message struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}
