package statepaths

import (
	"strings"

	"github.com/andrewgari/starbunk-js-sub002/internal/pathutil"
	"github.com/spf13/viper"
)

const (
	DirectoryDBFilename = "directory.db"
)

func FileStateDir() string {
	return pathutil.ResolveStateDir(viper.GetString("file_state_dir"))
}

func PluginsDir() string {
	return pathutil.ResolveStateChildDir(
		viper.GetString("file_state_dir"),
		viper.GetString("plugins.path"),
		"plugins",
	)
}

func BlacklistDir() string {
	return pathutil.ResolveStateChildDir(
		viper.GetString("file_state_dir"),
		viper.GetString("blacklist.dir_name"),
		"blacklist",
	)
}

func DirectoryDBPath() string {
	if p := strings.TrimSpace(viper.GetString("directory.path")); p != "" {
		return pathutil.ResolveStateChildDir(viper.GetString("file_state_dir"), p, DirectoryDBFilename)
	}
	return pathutil.ResolveStateFile(viper.GetString("file_state_dir"), DirectoryDBFilename)
}
