package testutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// FFmpegBehavior selects what the fake ffmpeg script does.
type FFmpegBehavior string

const (
	// FFmpegSucceeds reports a duration and progress, then writes a small WAV-like file.
	FFmpegSucceeds FFmpegBehavior = "succeed"
	// FFmpegFails writes a partial file, prints a decoder error and exits 1.
	FFmpegFails FFmpegBehavior = "fail"
	// FFmpegEmptyOutput exits 0 but leaves an empty output file.
	FFmpegEmptyOutput FFmpegBehavior = "empty"
	// FFmpegHangs sleeps until killed.
	FFmpegHangs FFmpegBehavior = "hang"
	// FFmpegLongLine prints a 2 MiB stderr line and more output, then succeeds.
	FFmpegLongLine FFmpegBehavior = "long-line"
)

// FFmpegErrorLine is printed to stderr by the failing fake.
const FFmpegErrorLine = "input.mp4: Invalid data found when processing input"

var ffmpegScripts = map[FFmpegBehavior]string{
	FFmpegSucceeds: `
echo "Input #0, mov,mp4,m4a,3gp,3g2,mj2, from 'input.mp4':" >&2
echo "  Duration: 00:00:10.00, start: 0.000000, bitrate: 128 kb/s" >&2
printf 'size=     128kB time=00:00:05.00 bitrate= 209.7kbits/s speed=50x\r' >&2
printf 'size=     313kB time=00:00:10.00 bitrate= 256.0kbits/s speed=50x\n' >&2
printf 'RIFF0000WAVEfmt fake-pcm-data' > "$out"
exit 0
`,
	FFmpegFails: `
printf 'RIFF' > "$out"
echo "` + FFmpegErrorLine + `" >&2
exit 1
`,
	FFmpegEmptyOutput: `
: > "$out"
exit 0
`,
	FFmpegHangs: `
exec sleep 30
`,
	FFmpegLongLine: `
echo "  Duration: 00:00:10.00, start: 0.000000, bitrate: 128 kb/s" >&2
dd if=/dev/zero bs=1048576 count=2 2>/dev/null | tr '\000' 'x' >&2
echo >&2
printf 'size=     313kB time=00:00:10.00 bitrate= 256.0kbits/s speed=50x\n' >&2
printf 'RIFF0000WAVEfmt fake-pcm-data' > "$out"
exit 0
`,
}

// FakeFFmpeg writes an executable shell script standing in for ffmpeg and returns its path.
// The script treats its last argument as the output path.
func FakeFFmpeg(t testing.TB, behavior FFmpegBehavior) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake ffmpeg requires a POSIX shell")
	}

	body, ok := ffmpegScripts[behavior]
	if !ok {
		t.Fatalf("unknown ffmpeg behavior %q", behavior)
	}

	path := filepath.Join(t.TempDir(), "ffmpeg")
	script := "#!/bin/sh\nfor out; do :; done\n" + body
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake ffmpeg: %v", err)
	}
	return path
}
