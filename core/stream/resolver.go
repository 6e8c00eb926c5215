// Package stream resolves a (content ID, quality, delivery format) request
// to the concrete URLs a client should fetch. Resolution is pure: URL
// construction is templated string building on the media store side, no
// network or filesystem access happens here.
package stream

import "errors"

// ErrInvalidContentID is returned when a resolver operation is called with
// an empty content ID.
var ErrInvalidContentID = errors.New("stream: invalid content id")

// Quality is one of the four fixed delivery tiers. The media store prices
// and caches transformations per discrete profile, so arbitrary bitrates
// are deliberately not supported.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
	QualityUltra  Quality = "ultra"
)

// Format selects the delivery path.
type Format string

const (
	FormatProgressive Format = "progressive" // single ranged file
	FormatSegmented   Format = "segmented"   // HLS playlist + segments
)

// bitrates maps each tier to its fixed target bitrate.
var bitrates = map[Quality]string{
	QualityLow:    "96k",
	QualityMedium: "128k",
	QualityHigh:   "192k",
	QualityUltra:  "320k",
}

// qualityOrder fixes the enumeration order for ResolveAllTiers.
var qualityOrder = []Quality{QualityLow, QualityMedium, QualityHigh, QualityUltra}

// ParseQuality maps a request string to a Quality. Anything unrecognized,
// including the empty string, falls back to high.
func ParseQuality(s string) Quality {
	switch Quality(s) {
	case QualityLow, QualityMedium, QualityHigh, QualityUltra:
		return Quality(s)
	default:
		return QualityHigh
	}
}

// Bitrate returns the fixed bitrate for a tier, applying the same
// fallback-to-high policy as ParseQuality.
func (q Quality) Bitrate() string {
	if b, ok := bitrates[q]; ok {
		return b
	}
	return bitrates[QualityHigh]
}

// URLBuilder is the media store's templated URL construction. Both methods
// are plain string building over the store's public endpoint; neither
// performs a network round trip.
type URLBuilder interface {
	// StreamURL returns the single-file delivery URL for a rendition at
	// the given bitrate, e.g. ".../audio/<id>/192k.mp3".
	StreamURL(contentID, bitrate string) string
	// ManifestURL returns the store-hosted HLS manifest URL for a
	// rendition at the given bitrate.
	ManifestURL(contentID, bitrate string) string
}

// TierURLs holds both delivery paths for one quality tier.
type TierURLs struct {
	Progressive string `json:"progressive"`
	Segmented   string `json:"segmented"`
}

// Resolver translates playback requests to fetchable URLs.
type Resolver struct {
	urls URLBuilder
}

// NewResolver creates a Resolver over the given URL builder.
func NewResolver(urls URLBuilder) *Resolver {
	return &Resolver{urls: urls}
}

// ResolveProgressive returns the single-file URL for a content ID at the
// requested tier. Unknown tiers resolve as high.
func (r *Resolver) ResolveProgressive(contentID string, quality Quality) (string, error) {
	if contentID == "" {
		return "", ErrInvalidContentID
	}
	return r.urls.StreamURL(contentID, quality.Bitrate()), nil
}

// ResolveSegmented returns the remote HLS manifest URL for a content ID at
// the requested tier. Locally generated segmented delivery is handled by
// the hls package instead; the HTTP layer picks between the two paths
// based on configuration.
func (r *Resolver) ResolveSegmented(contentID string, quality Quality) (string, error) {
	if contentID == "" {
		return "", ErrInvalidContentID
	}
	return r.urls.ManifestURL(contentID, quality.Bitrate()), nil
}

// ResolveAllTiers enumerates every tier in a fixed order (low to ultra)
// with both delivery formats. Used by the "show all streaming options"
// endpoint.
func (r *Resolver) ResolveAllTiers(contentID string) (map[Quality]TierURLs, error) {
	if contentID == "" {
		return nil, ErrInvalidContentID
	}

	out := make(map[Quality]TierURLs, len(qualityOrder))
	for _, q := range qualityOrder {
		out[q] = TierURLs{
			Progressive: r.urls.StreamURL(contentID, q.Bitrate()),
			Segmented:   r.urls.ManifestURL(contentID, q.Bitrate()),
		}
	}
	return out, nil
}

// Tiers returns the tier enumeration order.
func Tiers() []Quality {
	out := make([]Quality, len(qualityOrder))
	copy(out, qualityOrder)
	return out
}
