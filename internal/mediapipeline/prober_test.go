package mediapipeline

import "testing"

func TestClassifyHintForcesMPEGTSForPlaylistExtension(t *testing.T) {
	for _, hint := range []Hint{
		{Extension: ".m3u8"},
		{Extension: ".M3U"},
		{MIME: "application/vnd.apple.mpegurl"},
		{MIME: "Audio/MpegURL"},
	} {
		if got := classify(hint, []byte("OggS")); got != containerMPEGTS {
			t.Errorf("classify(%+v, OggS-like peek) = %v, want containerMPEGTS", hint, got)
		}
	}
}

func TestClassifySniffsMagicBytesWithoutHint(t *testing.T) {
	cases := []struct {
		name string
		peek []byte
		want containerKind
	}{
		{"ts sync byte", []byte{0x47, 0x00, 0x00, 0x10}, containerMPEGTS},
		{"ogg page", []byte("OggS\x00\x02\x00\x00"), containerOgg},
		{"id3 mp3", []byte("ID3\x04\x00\x00\x00"), containerMP3},
		{"bare mp3 frame sync", []byte{0xFF, 0xFB, 0x90, 0x00}, containerMP3},
		{"unrecognized", []byte{0x00, 0x01, 0x02, 0x03}, containerUnknown},
		{"empty", nil, containerUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classify(Hint{}, tc.peek); got != tc.want {
				t.Errorf("classify(Hint{}, %v) = %v, want %v", tc.peek, got, tc.want)
			}
		})
	}
}

func TestClassifyHintOverridesMagicByteSniffWhenPlaylistDriven(t *testing.T) {
	// An HLS segment named with a plain .ts extension still sniffs as
	// MPEG-TS on its own, but the hint rule must win even when the sniff
	// would have disagreed (e.g. a playlist MIME type paired with content
	// that looks like something else entirely).
	hint := Hint{MIME: "application/vnd.apple.mpegurl"}
	if got := classify(hint, []byte("ID3\x04")); got != containerMPEGTS {
		t.Errorf("classify(%+v, ID3 peek) = %v, want containerMPEGTS", hint, got)
	}
}
