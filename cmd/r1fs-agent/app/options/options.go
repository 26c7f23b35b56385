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

package options

import (
	"fmt"
	"os"
	"strings"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/r1fs-io/r1fs-agent/internal/nodeagent"
	"github.com/r1fs-io/r1fs-agent/pkg/app"
	"github.com/r1fs-io/r1fs-agent/pkg/log"
	"github.com/r1fs-io/r1fs-agent/pkg/options"
)

type AgentOptions struct {
	ExchangeOptions *options.ExchangeOptions `json:"exchange" mapstructure:"exchange"`
	StatusOptions   *options.StatusOptions   `json:"status" mapstructure:"status"`
	IpfsOptions     *options.IpfsOptions     `json:"ipfs" mapstructure:"ipfs"`
	HttpOptions     *options.HttpOptions     `json:"http" mapstructure:"http"`
	MqttOptions     *options.MqttOptions     `json:"mqtt" mapstructure:"mqtt"`
	S3Options       *options.S3Options       `json:"s3" mapstructure:"s3"`
	Log             *log.Options             `json:"log" mapstructure:"log"`
}

var _ app.NamedFlagSetOptions = (*AgentOptions)(nil)

func NewAgentOptions() *AgentOptions {
	o := &AgentOptions{
		ExchangeOptions: options.NewExchangeOptions(),
		StatusOptions:   options.NewStatusOptions(),
		IpfsOptions:     options.NewIpfsOptions(),
		HttpOptions:     options.NewHttpOptions(),
		MqttOptions:     options.NewMqttOptions(),
		S3Options:       options.NewS3Options(),
		Log:             log.NewOptions(),
	}

	return o
}

func (o *AgentOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.ExchangeOptions.AddFlags(fss.FlagSet("exchange"))
	o.StatusOptions.AddFlags(fss.FlagSet("status"))
	o.IpfsOptions.AddFlags(fss.FlagSet("ipfs"))
	o.HttpOptions.AddFlags(fss.FlagSet("http"))
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.S3Options.AddFlags(fss.FlagSet("s3"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

// Complete derives the MQTT client id from the host name when none is given.
func (o *AgentOptions) Complete() error {
	if o.MqttOptions.ClientID == "" {
		host, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("derive mqtt client id: %w", err)
		}
		o.MqttOptions.ClientID = "r1fs-" + strings.ToLower(host)
	}
	return nil
}

func (o *AgentOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.ExchangeOptions.Validate()...)
	errs = append(errs, o.StatusOptions.Validate()...)
	errs = append(errs, o.IpfsOptions.Validate()...)
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.S3Options.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

func (o *AgentOptions) Config() (*nodeagent.Config, error) {
	return &nodeagent.Config{
		ExchangeOptions: o.ExchangeOptions,
		StatusOptions:   o.StatusOptions,
		IpfsOptions:     o.IpfsOptions,
		HttpOptions:     o.HttpOptions,
		MqttOptions:     o.MqttOptions,
		S3Options:       o.S3Options,
	}, nil
}
