package infra

import (
	"context"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

const executablePollInterval = 5 * time.Second

// MonitorExecutable signals once when the running binary changes on
// disk, which is how deployments trigger a restart. The channel closes
// without a signal when the binary cannot be watched.
func MonitorExecutable(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		defer close(ch)

		path, err := os.Executable()
		if err != nil {
			log.WithError(err).Warn("executable watch disabled, cant resolve binary path")
			return
		}
		baseline, err := executableStamp(path)
		if err != nil {
			log.WithError(err).WithField("path", path).Warn("executable watch disabled, cant stat binary")
			return
		}

		ticker := time.NewTicker(executablePollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				current, err := executableStamp(path)
				if err != nil {
					log.WithError(err).WithField("path", path).Warn("cant stat binary, skipping tick")
					continue
				}
				if current != baseline {
					ch <- struct{}{}
					return
				}
			}
		}
	}()
	return ch
}

type stamp struct {
	modTime time.Time
	size    int64
}

func executableStamp(path string) (stamp, error) {
	info, err := os.Stat(path)
	if err != nil {
		return stamp{}, err
	}
	return stamp{modTime: info.ModTime(), size: info.Size()}, nil
}
