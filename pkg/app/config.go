// Copyright 2025 The R1FS Agent Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const configFlagName = "config"

// addConfigFlag registers --config and prepares viper to read the file,
// falling back to <basename>.yaml in the usual locations. Environment
// variables named <PREFIX>_<FLAG> override both, with dots and dashes
// in flag names mapped to underscores.
func addConfigFlag(v *viper.Viper, fs *pflag.FlagSet, envPrefix string) *string {
	cfgFile := fs.StringP(configFlagName, "c", "",
		"Read configuration from specified `FILE`, support JSON, TOML, YAML, HCL, or Java properties formats.")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return cfgFile
}

func readConfig(v *viper.Viper, cfgFile, basename string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".r1fs"))
		}
		v.AddConfigPath("/etc/r1fs")
		v.SetConfigName(basename)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read configuration file(%s): %w", cfgFile, err)
	}
	return nil
}
