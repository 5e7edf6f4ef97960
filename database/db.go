/*
Copyright 2025 Remit Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package database

import (
	"database/sql"
	"errors"
	"log"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/studiopay/remit/config"
)

// Ensure the instance is not accessible outside the package.
var (
	instance *Datasource
	initErr  error
	once     sync.Once
)

type Datasource struct {
	Conn *sql.DB
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	if con == nil {
		return nil, errors.New("datasource is not initialized")
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
// A failed first connection is remembered and returned on every later call.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	once.Do(func() {
		con, err := ConnectDB(configuration.DataSource.Dns)
		if err != nil {
			initErr = err
			return
		}
		instance = &Datasource{Conn: con}
	})
	if initErr != nil {
		return nil, initErr
	}
	return instance, nil
}

// ConnectDB opens the Postgres pool and makes sure the remit schema exists.
// Tables are created by the migrations under sql/.
func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}

	// Runs are serialized, so a small pool is enough for the worker and the API together.
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	err = db.Ping()
	if err != nil {
		log.Printf("database Connection error ❌: %v", err)
		return nil, err
	}
	if err = createSchema(db); err != nil {
		return nil, err
	}
	return db, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE SCHEMA IF NOT EXISTS remit`)
	return err
}
