package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/virtpad/virtpad/busclient"
	"github.com/virtpad/virtpad/wire"
)

// ClientFlags groups the connection options shared by the client
// commands.
type ClientFlags struct {
	Addr        string `help:"Bus server address" default:"localhost:3261" env:"VIRTPAD_ADDR"`
	Password    string `help:"Server password" env:"VIRTPAD_PASSWORD"`
	AskPassword bool   `help:"Prompt for the server password"`
}

func (f *ClientFlags) client() (*busclient.Client, error) {
	pw := f.Password
	if f.AskPassword {
		fmt.Fprint(os.Stderr, "Password: ")
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("read password: %w", err)
		}
		pw = string(b)
	}
	if pw != "" {
		return busclient.NewWithPassword(f.Addr, pw), nil
	}
	return busclient.New(f.Addr), nil
}

func parseTargetType(s string) (wire.TargetType, error) {
	switch s {
	case "x360":
		return wire.TargetX360Wired, nil
	case "ds4":
		return wire.TargetDS4Wired, nil
	default:
		return 0, fmt.Errorf("unknown target type %q", s)
	}
}

// Version checks that a running bus speaks this client's protocol
// version.
type Version struct {
	ClientFlags `embed:""`
}

func (v *Version) Run(logger *slog.Logger) error {
	c, err := v.client()
	if err != nil {
		return err
	}
	defer c.Close()
	if err := c.CheckVersion(context.Background()); err != nil {
		return err
	}
	logger.Info("bus protocol version matches",
		"version", fmt.Sprintf("0x%04x", wire.ProtocolVersion))
	return nil
}

// Plug creates a controller target on the bus.
type Plug struct {
	ClientFlags `embed:""`
	Type        string `arg:"" help:"Target type" enum:"x360,ds4"`
	Serial      uint32 `arg:"" help:"Target serial (nonzero)"`
	Vendor      uint16 `help:"Vendor ID override; 0 uses the variant default"`
	Product     uint16 `help:"Product ID override; 0 uses the variant default"`
}

func (p *Plug) Run(logger *slog.Logger) error {
	typ, err := parseTargetType(p.Type)
	if err != nil {
		return err
	}
	c, err := p.client()
	if err != nil {
		return err
	}
	defer c.Close()
	ctx := context.Background()
	if err := c.CheckVersion(ctx); err != nil {
		return err
	}
	if err := c.PlugIn(ctx, typ, p.Serial, p.Vendor, p.Product); err != nil {
		return err
	}
	logger.Info("target plugged in", "type", p.Type, "serial", p.Serial)
	if typ == wire.TargetX360Wired {
		idx, err := c.GetUserIndex(ctx, p.Serial)
		if err != nil {
			return err
		}
		logger.Info("assigned user index", "serial", p.Serial, "index", idx)
	}
	return nil
}

// Unplug removes a controller target from the bus.
type Unplug struct {
	ClientFlags `embed:""`
	Type        string `arg:"" help:"Target type" enum:"x360,ds4"`
	Serial      uint32 `arg:"" help:"Target serial"`
}

func (u *Unplug) Run(logger *slog.Logger) error {
	typ, err := parseTargetType(u.Type)
	if err != nil {
		return err
	}
	c, err := u.client()
	if err != nil {
		return err
	}
	defer c.Close()
	if err := c.Unplug(context.Background(), typ, u.Serial); err != nil {
		return err
	}
	logger.Info("target unplugged", "type", u.Type, "serial", u.Serial)
	return nil
}

// Watch blocks on notification requests and prints each feedback event
// until interrupted or the target goes away.
type Watch struct {
	ClientFlags `embed:""`
	Type        string `arg:"" help:"Target type" enum:"x360,ds4"`
	Serial      uint32 `arg:"" help:"Target serial"`
}

func (w *Watch) Run(logger *slog.Logger) error {
	typ, err := parseTargetType(w.Type)
	if err != nil {
		return err
	}
	c, err := w.client()
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("watching feedback", "type", w.Type, "serial", w.Serial)
	for {
		var statusErr *busclient.StatusError
		switch typ {
		case wire.TargetX360Wired:
			fb, err := c.RequestX360Notification(ctx, w.Serial)
			if err == nil {
				logger.Info("feedback",
					"largeMotor", fb.LargeMotor,
					"smallMotor", fb.SmallMotor,
					"led", fb.LedNumber)
				continue
			}
			if !errors.As(err, &statusErr) {
				return watchErr(ctx, err)
			}
		case wire.TargetDS4Wired:
			fb, err := c.RequestDS4Notification(ctx, w.Serial)
			if err == nil {
				logger.Info("feedback",
					"rumbleSmall", fb.RumbleSmall,
					"rumbleLarge", fb.RumbleLarge,
					"led", fmt.Sprintf("#%02x%02x%02x", fb.LedRed, fb.LedGreen, fb.LedBlue),
					"flashOn", fb.FlashOn,
					"flashOff", fb.FlashOff)
				continue
			}
			if !errors.As(err, &statusErr) {
				return watchErr(ctx, err)
			}
		}
		if statusErr.Status == wire.StatusTargetGone {
			logger.Info("target unplugged, stopping", "serial", w.Serial)
			return nil
		}
		return statusErr
	}
}

func watchErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Feedback pushes a feedback payload toward a target, completing its
// parked notification request if one is waiting.
type Feedback struct {
	ClientFlags `embed:""`
	Type        string `arg:"" help:"Target type" enum:"x360,ds4"`
	Serial      uint32 `arg:"" help:"Target serial"`
	Large       uint8  `help:"Large motor / heavy rumble strength"`
	Small       uint8  `help:"Small motor / light rumble strength"`
	Led         uint8  `help:"LED ring position (x360 only)"`
	Red         uint8  `help:"Lightbar red (ds4 only)"`
	Green       uint8  `help:"Lightbar green (ds4 only)"`
	Blue        uint8  `help:"Lightbar blue (ds4 only)"`
	FlashOn     uint8  `help:"Lightbar flash on duration, 2.5ms units (ds4 only)"`
	FlashOff    uint8  `help:"Lightbar flash off duration, 2.5ms units (ds4 only)"`
}

func (f *Feedback) Run(logger *slog.Logger) error {
	typ, err := parseTargetType(f.Type)
	if err != nil {
		return err
	}
	c, err := f.client()
	if err != nil {
		return err
	}
	defer c.Close()
	ctx := context.Background()

	switch typ {
	case wire.TargetX360Wired:
		err = c.PushX360Feedback(ctx, f.Serial, wire.X360Feedback{
			LargeMotor: f.Large,
			SmallMotor: f.Small,
			LedNumber:  f.Led,
		})
	case wire.TargetDS4Wired:
		err = c.PushDS4Feedback(ctx, f.Serial, wire.DS4Feedback{
			RumbleSmall: f.Small,
			RumbleLarge: f.Large,
			LedRed:      f.Red,
			LedGreen:    f.Green,
			LedBlue:     f.Blue,
			FlashOn:     f.FlashOn,
			FlashOff:    f.FlashOff,
		})
	}
	if err != nil {
		return err
	}
	logger.Info("feedback delivered", "type", f.Type, "serial", f.Serial)
	return nil
}
