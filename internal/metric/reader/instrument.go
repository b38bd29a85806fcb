package metricreader

// InstrumentKind enumerates the instrument shapes the spec names (§3).
type InstrumentKind int

const (
	KindCounter InstrumentKind = iota
	KindUpDownCounter
	KindHistogram
	KindObservableCounter
	KindObservableUpDownCounter
	KindObservableGauge
)

// IsObservable reports whether the kind is driven by a registered
// callback rather than direct producer calls.
func (k InstrumentKind) IsObservable() bool {
	switch k {
	case KindObservableCounter, KindObservableUpDownCounter, KindObservableGauge:
		return true
	default:
		return false
	}
}

// Instrument identifies a registered measurement point (spec §3).
type Instrument struct {
	Kind        InstrumentKind
	Name        string
	Unit        string
	Description string
	Meter       string
}

// key returns the identity Tables indexes view-aggregations by.
func (i Instrument) key() string {
	return i.Meter + "/" + i.Name
}
