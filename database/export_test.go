package database

var DeleteScoped = deleteScoped
