package config

import (
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch reloads the config file on change and hands the new configuration
// to onChange. Invalid edits are logged and ignored. It is a no-op when no
// file was loaded.
func (l *Loader) Watch(logger *zap.Logger, onChange func(*Config)) {
	if !l.hasFile {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := l.decode()
		if err != nil {
			logger.Warn("Ignoring invalid configuration change",
				zap.String("file", e.Name),
				zap.String("op", e.Op.String()),
				zap.Error(err))
			return
		}
		logger.Info("Configuration reloaded", zap.String("file", e.Name))
		onChange(cfg)
	})
	l.v.WatchConfig()
}
