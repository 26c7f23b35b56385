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
	"fmt"

	genericapiserver "k8s.io/apiserver/pkg/server"
	"k8s.io/klog/v2"

	"github.com/r1fs-io/r1fs-agent/cmd/r1fs-agent/app/options"
	"github.com/r1fs-io/r1fs-agent/pkg/app"
	"github.com/r1fs-io/r1fs-agent/pkg/log"
)

const (
	commandName = "r1fs-agent"
	commandDesc = `The r1fs agent runs next to an IPFS (Kubo) daemon on every node of a
private swarm. It waits for the bootstrap artifact (swarm key and relay
address), starts and joins the daemon, then on every cycle resolves the
content ids listed in the shared command file and publishes a status
document back into the swarm.`
)

func NewApp() *app.App {
	opts := options.NewAgentOptions()
	application := app.NewApp(
		commandName,
		"Launch the r1fs command/status exchange agent",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithEnvPrefix("R1FS"),
		app.WithDefaultValidArgs(),
		app.WithRunFunc(run(opts)),
		app.WithCommands(
			keygenCommand(),
			inspectCommand(opts),
			latestCommand(opts),
			pinsCommand(opts),
			historyCommand(opts),
		),
	)
	return application
}

func run(opts *options.AgentOptions) app.RunFunc {
	return func() error {
		log.Init(opts.Log)
		defer log.Sync()
		klog.SetLogger(log.Logr().WithName("klog"))

		ctx := genericapiserver.SetupSignalContext()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		agent, err := cfg.NewNodeAgent()
		if err != nil {
			return fmt.Errorf("failed to create agent: %w", err)
		}

		return agent.Run(ctx)
	}
}
