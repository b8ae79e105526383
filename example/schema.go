package main

var schemaMySQL = []string{
	`DROP TABLE IF EXISTS todos`,
	`DROP TABLE IF EXISTS users`,
	`CREATE TABLE users (
		id INT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		email VARCHAR(255) NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE todos (
		id INT PRIMARY KEY,
		user_id INT NOT NULL,
		description VARCHAR(255) NOT NULL,
		done BOOLEAN NOT NULL DEFAULT FALSE,
		due_at DATETIME NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users (id)
	)`,
}

var schemaPostgreSQL = []string{
	`DROP TABLE IF EXISTS todos`,
	`DROP TABLE IF EXISTS users`,
	`CREATE TABLE users (
		id INTEGER PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		email VARCHAR(255) NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE todos (
		id INTEGER PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users (id),
		description VARCHAR(255) NOT NULL,
		done BOOLEAN NOT NULL DEFAULT FALSE,
		due_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL
	)`,
}

var schemaSQLite = []string{
	`DROP TABLE IF EXISTS todos`,
	`DROP TABLE IF EXISTS users`,
	`CREATE TABLE users (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE todos (
		id INTEGER PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users (id),
		description TEXT NOT NULL,
		done BOOLEAN NOT NULL DEFAULT FALSE,
		due_at DATETIME,
		created_at DATETIME NOT NULL
	)`,
}
