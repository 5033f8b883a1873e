package models

import (
	"log"

	"bitbucket.org/rentfolio/reporting_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&RentCharge{}, &RentPayment{},
		&ReportingConsent{},
		&CreditReportingSubmission{},
		&ReportingSettings{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
