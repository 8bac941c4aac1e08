package presets

import (
	"time"

	"github.com/jd-code76/provinent-scripture-study-sub000/config"
)

func init() {
	register("fastnet", fastnet())
}

// fastnet shortens every timer for interactive demos.
func fastnet() config.Config {
	conf := config.DefaultConfig()
	conf.Sync.ReconnectInterval = 2 * time.Second
	conf.Sync.PeerUnavailableRetry = 500 * time.Millisecond
	conf.Sync.AutoSyncDelay = time.Second
	conf.Sync.ChallengeTimeout = 5 * time.Second
	conf.Transport.ConnectTimeout = 5 * time.Second
	return conf
}
