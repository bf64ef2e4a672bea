package surface

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// X11Surface drives a local X display: xdotool for pointer/keyboard input,
// ffmpeg x11grab (scrot fallback) for screen captures.
type X11Surface struct {
	Display   string
	RunFolder string
	seq       atomic.Uint64
}

func NewX11Surface(display, runFolder string) *X11Surface {
	if display == "" {
		display = ":0.0"
	}
	return &X11Surface{Display: display, RunFolder: runFolder}
}

func (s *X11Surface) Capture(ctx context.Context) (*Observation, error) {
	seq := s.seq.Add(1)

	if err := os.MkdirAll(s.RunFolder, 0755); err != nil {
		return nil, fmt.Errorf("capture: %v", err)
	}
	path := filepath.Join(s.RunFolder, fmt.Sprintf("screen_%06d.png", seq))

	cmd := exec.CommandContext(ctx, "ffmpeg", "-f", "x11grab", "-i", s.Display, "-frames:v", "1", path, "-y")
	if output, err := cmd.CombinedOutput(); err != nil {
		// Fallback to scrot just in case ffmpeg is missing
		cmd = exec.CommandContext(ctx, "scrot", path)
		if output2, err2 := cmd.CombinedOutput(); err2 != nil {
			return nil, fmt.Errorf("capture failed: ffmpeg: %v (%s); scrot: %v (%s)",
				err, strings.TrimSpace(string(output)), err2, strings.TrimSpace(string(output2)))
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("capture: read %s: %v", path, err)
	}

	return &Observation{Seq: seq, Data: data, Path: path, TakenAt: time.Now()}, nil
}

func (s *X11Surface) Perform(ctx context.Context, cmd Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	switch cmd.Kind {
	case KindWait:
		return sleep(ctx, cmd.Seconds)
	case KindScript:
		return s.runScript(ctx, cmd.Script)
	}

	args, err := xdotoolArgs(cmd)
	if err != nil {
		return err
	}

	c := exec.CommandContext(ctx, "xdotool", args...)
	c.Env = append(os.Environ(), "DISPLAY="+s.Display)
	output, err := c.CombinedOutput()
	if err != nil {
		if strings.Contains(err.Error(), "executable file not found") {
			return fmt.Errorf("xdotool is not installed")
		}
		return fmt.Errorf("xdotool %s: %v\nOutput: %s", args[0], err, string(output))
	}
	return nil
}

func (s *X11Surface) runScript(ctx context.Context, script string) error {
	c := exec.CommandContext(ctx, "bash", "-c", script)
	c.Env = append(os.Environ(), "DISPLAY="+s.Display)
	output, err := c.CombinedOutput()
	if err != nil {
		return fmt.Errorf("script failed: %v\nOutput: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// xdotoolArgs translates a pointer/key/text command into an xdotool
// invocation. Kept pure so argument mapping is testable without a display.
func xdotoolArgs(cmd Command) ([]string, error) {
	switch cmd.Kind {
	case KindPointer:
		switch cmd.Action {
		case "move":
			return []string{"mousemove", strconv.Itoa(cmd.X), strconv.Itoa(cmd.Y)}, nil
		case "left_click":
			return []string{"mousemove", strconv.Itoa(cmd.X), strconv.Itoa(cmd.Y), "click", "1"}, nil
		case "double_click":
			return []string{"mousemove", strconv.Itoa(cmd.X), strconv.Itoa(cmd.Y), "click", "--repeat", "2", "1"}, nil
		case "middle_click":
			return []string{"mousemove", strconv.Itoa(cmd.X), strconv.Itoa(cmd.Y), "click", "2"}, nil
		case "right_click":
			return []string{"mousemove", strconv.Itoa(cmd.X), strconv.Itoa(cmd.Y), "click", "3"}, nil
		case "scroll":
			button := "4" // up
			amount := cmd.Amount
			if amount < 0 {
				button = "5"
				amount = -amount
			}
			if amount == 0 {
				amount = 1
			}
			return []string{"click", "--repeat", strconv.Itoa(amount), button}, nil
		default:
			return nil, fmt.Errorf("unknown pointer action: %s", cmd.Action)
		}
	case KindKey:
		return []string{"key", strings.Join(cmd.Keys, "+")}, nil
	case KindText:
		return []string{"type", "--delay", "30", cmd.Text}, nil
	}
	return nil, fmt.Errorf("no xdotool mapping for kind %s", cmd.Kind)
}
