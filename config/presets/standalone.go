package presets

import (
	"os"
	"path/filepath"

	"github.com/jd-code76/provinent-scripture-study-sub000/config"
)

func init() {
	register("standalone", standalone())
}

// standalone runs against a local rendezvous server with in-memory state.
func standalone() config.Config {
	conf := config.DefaultConfig()
	conf.DataDir = filepath.Join(os.TempDir(), "peersync")
	conf.Store = config.StoreMemory
	conf.Transport.SignalURL = "ws://127.0.0.1:9000/peerjs"
	conf.Transport.ICEServers = nil
	conf.Signal.Listen = "127.0.0.1:9000"
	return conf
}
