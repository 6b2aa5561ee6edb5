package main

import (
	"os"

	"github.com/grafana/grafana-plugin-sdk-go/backend/datasource"
	"github.com/grafana/grafana-plugin-sdk-go/backend/log"
	"github.com/wasilak/grafana-checkmk-datasource/pkg/plugin"
)

var logger = log.New()

func main() {
	logger.Info("Plugin main() starting", "pluginId", plugin.PluginID)

	// Start the datasource backend with instance manager
	if err := datasource.Manage(plugin.PluginID, plugin.NewDatasource, datasource.ManageOpts{}); err != nil {
		logger.Error("Error serving datasource", "error", err)
		os.Exit(1)
	}
}
