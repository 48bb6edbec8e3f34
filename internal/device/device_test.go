package device

import (
	"context"
	"errors"
	"testing"

	"github.com/pion/logging"
)

func testLogger() logging.LeveledLogger {
	return logging.NewDefaultLoggerFactory().NewLogger("test")
}

// fakeSDK records calls and fails on demand.
type fakeSDK struct {
	initErr  error
	startErr error
	closeErr error

	inits   int
	starts  int
	session *fakeSession
}

func (f *fakeSDK) Name() string { return "fake" }

func (f *fakeSDK) InitializeLibraries() error {
	f.inits++
	return f.initErr
}

func (f *fakeSDK) StartDevice(ctx context.Context, cfg *Configuration, rec RecordOptions) (Session, error) {
	f.starts++
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.session = &fakeSession{closeErr: f.closeErr, rec: rec}
	return f.session, nil
}

type fakeSession struct {
	rec      RecordOptions
	closeErr error
	closes   int
}

func (s *fakeSession) ID() string         { return "fake-session" }
func (s *fakeSession) RecordPath() string { return s.rec.Path }

func (s *fakeSession) Capture(ctx context.Context) (*Capture, error) {
	if s.closes > 0 {
		return nil, ErrSessionClosed
	}
	return nil, errors.New("no frames")
}

func (s *fakeSession) SetColorControl(name string, value int32) error { return nil }

func (s *fakeSession) Close() error {
	s.closes++
	return s.closeErr
}

func newSynthetic(t *testing.T) *Synthetic {
	t.Helper()
	sdk := NewSynthetic(testLogger(), nil)
	if err := sdk.InitializeLibraries(); err != nil {
		t.Fatal(err)
	}
	return sdk
}

func smallConfig(extra map[string]string) *Configuration {
	sel := map[string]string{
		KeyCameraFPS:       "120",
		KeyColorResolution: "32x24",
		KeyDepthMode:       "nfov_2x2binned",
	}
	for k, v := range extra {
		sel[k] = v
	}
	return BuildConfiguration(sel)
}
