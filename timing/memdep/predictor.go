package memdep

// PredictorConfig holds configuration for the dependence predictor.
type PredictorConfig struct {
	// TableSize is the number of entries in the dependence pair table.
	// Must be a power of 2. Default is 1024.
	TableSize uint32
}

// DefaultPredictorConfig returns a default configuration.
func DefaultPredictorConfig() PredictorConfig {
	return PredictorConfig{
		TableSize: 1024,
	}
}

// PredictorStats holds statistics for the dependence predictor.
type PredictorStats struct {
	// Lookups is the total number of load/store pair queries.
	Lookups uint64
	// Hits is the number of queries that matched a trained pair.
	Hits uint64
	// Trainings is the number of violation-driven table updates.
	Trainings uint64
}

// HitRate returns the fraction of lookups that predicted a dependence.
func (s PredictorStats) HitRate() float64 {
	if s.Lookups == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Lookups)
}

// Predictor remembers store/load PC pairs that have caused memory ordering
// violations. Loads start out unconstrained; once a store forwards to a
// younger load that already executed, the pair is trained and future
// instances of the load wait for that store.
type Predictor struct {
	entries []pairEntry
	valid   []bool

	tableSize uint32

	stats PredictorStats
}

// pairEntry records one offending store/load PC pair.
type pairEntry struct {
	loadPC  uint64
	storePC uint64
}

// NewPredictor creates a dependence predictor with the given configuration.
func NewPredictor(config PredictorConfig) *Predictor {
	tableSize := config.TableSize
	if tableSize == 0 {
		tableSize = 1024
	}

	return &Predictor{
		entries:   make([]pairEntry, tableSize),
		valid:     make([]bool, tableSize),
		tableSize: tableSize,
	}
}

// index computes the table index for a load PC.
func (p *Predictor) index(loadPC uint64) uint32 {
	// Use lower bits of PC (excluding alignment bits)
	return uint32((loadPC >> 2) & uint64(p.tableSize-1))
}

// Conflicts reports whether the load at loadPC has previously violated
// ordering against the store at storePC.
func (p *Predictor) Conflicts(loadPC, storePC uint64) bool {
	p.stats.Lookups++

	idx := p.index(loadPC)
	if p.valid[idx] && p.entries[idx].loadPC == loadPC && p.entries[idx].storePC == storePC {
		p.stats.Hits++
		return true
	}
	return false
}

// Train records that the load at loadPC must wait for the store at storePC.
func (p *Predictor) Train(loadPC, storePC uint64) {
	idx := p.index(loadPC)
	p.entries[idx] = pairEntry{
		loadPC:  loadPC,
		storePC: storePC,
	}
	p.valid[idx] = true
	p.stats.Trainings++
}

// Stats returns the predictor statistics.
func (p *Predictor) Stats() PredictorStats {
	return p.stats
}

// Reset clears all predictor state and statistics.
func (p *Predictor) Reset() {
	for i := range p.valid {
		p.valid[i] = false
	}
	p.stats = PredictorStats{}
}
