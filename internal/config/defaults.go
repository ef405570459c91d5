package config

import (
	"path/filepath"

	"github.com/adrg/xdg"
)

const (
	debugEnabled     = false
	writeConcurrency = 4
)

var (
	downloadDir = xdg.UserDirs.Download
	stateDBPath = filepath.Join(xdg.DataHome, configFileName, "state.db")
	logPath     = filepath.Join(xdg.StateHome, configFileName, "piecestore.log")
)
