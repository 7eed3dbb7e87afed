package main

import (
	"log"

	"github.com/tmx156/Crm-sub003/config"
	"github.com/tmx156/Crm-sub003/db"
	"github.com/tmx156/Crm-sub003/server"
	"github.com/tmx156/Crm-sub003/services"
)

func main() {
	conf, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	gormDB := db.GetDB(conf)
	messageRepo := db.NewMessageRepo(gormDB)
	leadRepo := db.NewLeadRepo(gormDB)

	hub := server.NewHub()
	messageService := services.NewMessageService(messageRepo, leadRepo, hub, conf)

	s := &server.Server{
		Config:            conf,
		MessageService:    messageService,
		MessageRepository: messageRepo,
		LeadRepository:    leadRepo,
		Hub:               hub,
		DB:                db.GormDB{},
	}

	s.Start()
}
