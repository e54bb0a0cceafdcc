package alert

import (
	"fmt"
	"math"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// TrackKey is a coarse spatial identity: same label in the same horizontal
// bucket is treated as the same thing across frames.
type TrackKey struct {
	Label  string
	Bucket int
}

// String implements fmt.Stringer.
func (k TrackKey) String() string {
	return fmt.Sprintf("%s#%d", k.Label, k.Bucket)
}

// KeyFor derives the track key for a box whose left edge is at x1.
func KeyFor(label string, x1, bucketWidth int) TrackKey {
	if bucketWidth <= 0 {
		bucketWidth = 1
	}
	return TrackKey{
		Label:  label,
		Bucket: int(math.Floor(float64(x1) / float64(bucketWidth))),
	}
}

// TrackState is the last announced state of one key.
type TrackState struct {
	LastDistance    float64
	LastAnnouncedAt time.Time
	LastSeenAt      time.Time
}

// DedupConfig holds the announcement gates.
type DedupConfig struct {
	ChangeThreshold    float64       `mapstructure:"change_threshold"`    // cm
	ReannounceInterval time.Duration `mapstructure:"reannounce_interval"` // minimum gap per key
	BucketWidth        int           `mapstructure:"bucket_width"`        // px per horizontal bucket
	TrackTTL           time.Duration `mapstructure:"track_ttl"`           // unseen longer than this = new; 0 disables
	MaxTracks          int           `mapstructure:"max_tracks"`          // LRU bound per session
}

// DefaultDedupConfig returns the tuned announcement gates.
func DefaultDedupConfig() DedupConfig {
	return DedupConfig{
		ChangeThreshold:    10,
		ReannounceInterval: 1500 * time.Millisecond,
		BucketWidth:        100,
		TrackTTL:           30 * time.Second,
		MaxTracks:          256,
	}
}

// Validate checks the gates.
func (c DedupConfig) Validate() error {
	if c.ChangeThreshold < 0 {
		return fmt.Errorf("alert: change threshold must not be negative, got %v", c.ChangeThreshold)
	}
	if c.ReannounceInterval < 0 {
		return fmt.Errorf("alert: reannounce interval must not be negative, got %v", c.ReannounceInterval)
	}
	if c.BucketWidth <= 0 {
		return fmt.Errorf("alert: bucket width must be positive, got %d", c.BucketWidth)
	}
	if c.MaxTracks <= 0 {
		return fmt.Errorf("alert: max tracks must be positive, got %d", c.MaxTracks)
	}
	return nil
}

// Deduplicator decides whether a fresh reading warrants a new spoken alert.
// Each session owns its own Deduplicator; state is never shared across
// sessions.
type Deduplicator struct {
	cfg DedupConfig

	mu     sync.Mutex
	tracks *lru.Cache[TrackKey, TrackState]
}

// NewDeduplicator creates an empty track store.
func NewDeduplicator(cfg DedupConfig) (*Deduplicator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tracks, err := lru.New[TrackKey, TrackState](cfg.MaxTracks)
	if err != nil {
		return nil, fmt.Errorf("alert: create track store: %w", err)
	}
	return &Deduplicator{cfg: cfg, tracks: tracks}, nil
}

// Key derives the track key using the configured bucket width.
func (d *Deduplicator) Key(label string, x1 int) TrackKey {
	return KeyFor(label, x1, d.cfg.BucketWidth)
}

// ShouldAnnounce reports whether distance for key at now should be spoken.
// A known key needs both a distance change above the threshold and the
// reannounce interval to have elapsed. On true the track is updated under the
// same lock as the decision.
func (d *Deduplicator) ShouldAnnounce(key TrackKey, distance float64, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, ok := d.tracks.Get(key)
	if ok && d.cfg.TrackTTL > 0 && now.Sub(st.LastSeenAt) > d.cfg.TrackTTL {
		ok = false
	}

	if ok {
		st.LastSeenAt = now
		changed := math.Abs(distance-st.LastDistance) > d.cfg.ChangeThreshold
		elapsed := now.Sub(st.LastAnnouncedAt) > d.cfg.ReannounceInterval
		if !changed || !elapsed {
			d.tracks.Add(key, st)
			return false
		}
	}

	d.tracks.Add(key, TrackState{
		LastDistance:    distance,
		LastAnnouncedAt: now,
		LastSeenAt:      now,
	})
	return true
}

// Track returns the stored state for key.
func (d *Deduplicator) Track(key TrackKey) (TrackState, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tracks.Peek(key)
}

// Len returns the number of tracked keys.
func (d *Deduplicator) Len() int {
	return d.tracks.Len()
}

// Reset drops all tracks.
func (d *Deduplicator) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tracks.Purge()
}
