package main

import (
	"github.com/tiffinbox/ordersync/internal/app/customerapp"
	"github.com/tiffinbox/ordersync/internal/config"
)

func main() {
	config.MustInit()
	customerapp.MustNewApp().Run()
}
