package audio

import "context"

// Processor defines an interface for audio processing operations.
type Processor interface {
	// ProcessToHLS transcodes inputFile into an HLS playlist at outputM3U8
	// with media segments written to segmentPattern. Returns the source
	// duration in seconds when it can be determined.
	ProcessToHLS(ctx context.Context, inputFile, outputM3U8, segmentPattern, audioBitrate, hlsSegmentTime string) (float32, error)
	GetAudioDuration(ctx context.Context, inputFile string) (float32, error)
}
