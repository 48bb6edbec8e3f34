package device

import (
	"context"

	"github.com/pion/logging"
)

// CheckDevice is the pre-flight probe: it initializes the backend, opens a
// session with cfg and closes it again. Any failure is returned as an
// *UnavailableError; deciding whether to exit is left to the caller.
//
// The open is bounded by ctx even when the backend blocks inside the
// driver. A session that arrives after ctx is done is closed in the
// background.
func CheckDevice(ctx context.Context, sdk SDK, cfg *Configuration, log logging.LeveledLogger) error {
	if err := sdk.InitializeLibraries(); err != nil {
		log.Errorf("camera connection problem: initialize %s: %v", sdk.Name(), err)
		return &UnavailableError{Op: "initialize", Err: Classify(err)}
	}

	sess, err := startWithin(ctx, sdk, cfg, log)
	if err != nil {
		log.Errorf("camera connection problem: open %s: %v", sdk.Name(), err)
		return &UnavailableError{Op: "open", Err: Classify(err)}
	}
	log.Debugf("camera connection OK (%s session %s)", sdk.Name(), sess.ID())

	if err := sess.Close(); err != nil {
		log.Errorf("camera connection problem: close %s: %v", sdk.Name(), err)
		return &UnavailableError{Op: "close", Err: Classify(err)}
	}
	return nil
}

type startResult struct {
	sess Session
	err  error
}

func startWithin(ctx context.Context, sdk SDK, cfg *Configuration, log logging.LeveledLogger) (Session, error) {
	done := make(chan startResult, 1)
	go func() {
		sess, err := sdk.StartDevice(ctx, cfg, RecordOptions{})
		done <- startResult{sess, err}
	}()

	select {
	case r := <-done:
		return r.sess, r.err
	case <-ctx.Done():
		go func() {
			r := <-done
			if r.err == nil {
				log.Warnf("closing late %s session %s", sdk.Name(), r.sess.ID())
				r.sess.Close()
			}
		}()
		return nil, ctx.Err()
	}
}
