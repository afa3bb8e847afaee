package main

import (
	"github.com/tiffinbox/ordersync/internal/app/relayapp"
	"github.com/tiffinbox/ordersync/internal/config"
)

func main() {
	config.MustInit()
	relayapp.MustNewApp().Run()
}
