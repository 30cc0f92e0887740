package main

import (
	"log"

	"pixtip/internal/config"
	"pixtip/server"
)

func main() {

	conf, err := config.GetConfig()
	if err != nil {
		log.Println("configuration load failed", err)
		return
	}

	tipSystem, err := server.NewTipSystem(conf)
	if err != nil {
		log.Println("tip system initialization failed", err)
		return
	}
	tipSystem.Start()

}
