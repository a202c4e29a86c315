package main

import (
	"github.com/saidstrong/nuet-prep-academy-sub001/storage/database"
)

var gooseRunFunc = database.RunMigrations // mockable

func (cli *commandLine) migrate(args []string) error {
	return gooseRunFunc(cli.db, cli.logger, args[0], args[1:]...)
}
