package debug

import (
	"fmt"
	"net/http"
	_ "net/http/pprof"

	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"
)

var dumper = spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, DisableCapacities: true}

// StartUtilities spins off the services associated with debug mode.
func StartUtilities(logger *logrus.Logger, pprofPort int) {
	go func() {
		logger.Infof("starting pprof server on port %d", pprofPort)
		if err := http.ListenAndServe(fmt.Sprintf(":%d", pprofPort), nil); err != nil {
			logger.Errorf("error starting pprof server: %v", err)
		}
	}()
}

// DumpMessage renders a dispatched message for message-level logging.
func DumpMessage(message interface{}) string {
	return dumper.Sdump(message)
}
