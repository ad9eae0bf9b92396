package main

import (
	"log"
)

var (
	GitCommit string
	GitTag    string
	BuildTime string
)

//	@title			Books Inventory API
//	@version		1.0
//	@description	Manages books of an inventory with their stock.
//	@contact.name	Jerome Amon
//	@license.name	MIT
//	@BasePath		/
func main() {
	app, err := NewApp()
	if err != nil {
		log.Fatal("application failed to initialized: ", err)
	}
	err = app.Run()
	if err != nil {
		log.Fatal("application exited. check logs for more details.", err)
	}
}
