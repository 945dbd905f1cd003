package transcode

import "fmt"

// SegmentSeconds is the target HLS segment duration for every rendition.
const SegmentSeconds = 10

// Rendition is one fixed-quality output of the ladder.
type Rendition struct {
	Name         string
	Width        int
	Height       int
	VideoBitrate string
	AudioBitrate string
	// Bandwidth is only advertised in the master manifest; it is not measured.
	Bandwidth int
}

// Resolution formats the rendition size as WIDTHxHEIGHT.
func (r Rendition) Resolution() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// PlaylistName is the rendition's own media playlist file.
func (r Rendition) PlaylistName() string {
	return r.Name + ".m3u8"
}

// SegmentPattern is the ffmpeg pattern for the rendition's numbered segments.
func (r Rendition) SegmentPattern() string {
	return r.Name + "_%03d.ts"
}

// DefaultLadder returns the renditions every upload is encoded into, highest
// quality first. The order is also the encode order and the manifest order.
func DefaultLadder() []Rendition {
	return []Rendition{
		{Name: "1080p", Width: 1920, Height: 1080, VideoBitrate: "5000k", AudioBitrate: "192k", Bandwidth: 5300000},
		{Name: "720p", Width: 1280, Height: 720, VideoBitrate: "2500k", AudioBitrate: "128k", Bandwidth: 2800000},
		{Name: "480p", Width: 854, Height: 480, VideoBitrate: "1000k", AudioBitrate: "128k", Bandwidth: 1400000},
		{Name: "360p", Width: 640, Height: 360, VideoBitrate: "800k", AudioBitrate: "96k", Bandwidth: 1000000},
		{Name: "144p", Width: 256, Height: 144, VideoBitrate: "400k", AudioBitrate: "64k", Bandwidth: 600000},
	}
}
