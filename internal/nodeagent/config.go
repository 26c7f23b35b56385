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

package nodeagent

import (
	"fmt"

	"k8s.io/utils/clock"

	"github.com/r1fs-io/r1fs-agent/internal/exchange"
	"github.com/r1fs-io/r1fs-agent/internal/exchange/bootstrap"
	"github.com/r1fs-io/r1fs-agent/internal/exchange/sink"
	"github.com/r1fs-io/r1fs-agent/internal/server"
	httpserver "github.com/r1fs-io/r1fs-agent/internal/server/http"
	mqttserver "github.com/r1fs-io/r1fs-agent/internal/server/mqtt"
	"github.com/r1fs-io/r1fs-agent/internal/store"
	"github.com/r1fs-io/r1fs-agent/pkg/log"
	pkgmqtt "github.com/r1fs-io/r1fs-agent/pkg/mqtt"
	"github.com/r1fs-io/r1fs-agent/pkg/mqtt/topic"
	"github.com/r1fs-io/r1fs-agent/pkg/options"
)

type Config struct {
	ExchangeOptions *options.ExchangeOptions
	StatusOptions   *options.StatusOptions
	IpfsOptions     *options.IpfsOptions
	HttpOptions     *options.HttpOptions
	MqttOptions     *options.MqttOptions
	S3Options       *options.S3Options
}

// NewStore creates the daemon adapter from the ipfs options.
func (cfg *Config) NewStore() (*store.KuboClient, error) {
	limit, err := cfg.IpfsOptions.AddLimit()
	if err != nil {
		return nil, fmt.Errorf("max add size: %w", err)
	}
	return store.NewKuboClient(cfg.IpfsOptions.APIURL,
		store.WithTimeout(cfg.IpfsOptions.Timeout),
		store.WithMaxAddSize(limit),
	)
}

func (cfg *Config) NewNodeAgent() (*NodeAgent, error) {
	ex := cfg.ExchangeOptions
	clk := clock.RealClock{}

	kubo, err := cfg.NewStore()
	if err != nil {
		return nil, err
	}

	commands := exchange.NewCommandFile(ex.Path(ex.CommandFile))
	artifactPath := ex.Path(ex.ConfigFile)
	if ex.InitFiles {
		if created, err := commands.Init(); err != nil {
			return nil, fmt.Errorf("initialize command file: %w", err)
		} else if created {
			log.Info("Created command file template", "path", commands.Path())
		}
		if created, err := bootstrap.WriteTemplate(artifactPath); err != nil {
			return nil, fmt.Errorf("initialize bootstrap artifact: %w", err)
		} else if created {
			log.Info("Created bootstrap artifact template, fill it in to start the daemon", "path", artifactPath)
		}
	}

	launcher := bootstrap.NewDaemonLauncher(kubo, bootstrap.DaemonConfig{
		Binary:        cfg.IpfsOptions.Binary,
		Repo:          cfg.IpfsOptions.Repo(),
		StartTimeout:  cfg.IpfsOptions.StartTimeout,
		KeepBootstrap: cfg.IpfsOptions.KeepBootstrap,
	}, clk)
	gate := bootstrap.NewGate(artifactPath, launcher, clk, ex.Interval)

	na := &NodeAgent{launcher: launcher}

	sinks := []exchange.Sink{sink.NewLog(log.WithName("status"))}
	if ex.StatusIDFile != "" {
		sinks = append(sinks, sink.NewIDFile(ex.Path(ex.StatusIDFile)))
	}
	if cfg.S3Options.Enabled {
		s3, err := sink.NewS3(cfg.S3Options)
		if err != nil {
			return nil, err
		}
		na.bucket = s3
		sinks = append(sinks, s3)
	}

	var mqttSrv *mqttserver.Server
	if cfg.MqttOptions.Enabled {
		builder := topic.NewBuilder(cfg.MqttOptions.TopicRoot)
		clientCfg := cfg.MqttOptions.ToClientConfig()
		mqttserver.WillConfig(clientCfg, builder)
		client, err := pkgmqtt.NewClient(clientCfg)
		if err != nil {
			return nil, err
		}

		var queue sink.Queue
		if cfg.MqttOptions.AutoFetch {
			queue = commands
		}
		announcer := sink.NewMQTT(client, cfg.MqttOptions.TopicRoot, queue)
		sinks = append(sinks, announcer)
		mqttSrv = mqttserver.NewServer(client, builder, clientCfg.ClientID)
		mqttSrv.OnShutdown(announcer.Unfollow)
	}

	agent, err := (&exchange.Config{
		Store:    kubo,
		Commands: commands,
		Gate:     gate,
		Poller: exchange.PollerConfig{
			ResolveTimeout: ex.ResolveTimeout,
			PreviewLimit:   ex.PreviewLimit,
			Consume:        ex.Consume,
		},
		Format:        cfg.StatusOptions.Format,
		Every:         cfg.StatusOptions.Every,
		Interval:      ex.Interval,
		ShutdownGrace: ex.ShutdownGrace,
		Sinks:         sinks,
		Clock:         clk,
	}).NewAgent()
	if err != nil {
		return nil, err
	}
	na.agent = agent

	na.manager = server.NewManager(server.RunFunc(agent.Run))
	if mqttSrv != nil {
		na.manager.Add(mqttSrv)
	}
	if cfg.HttpOptions.Enabled {
		na.manager.Add(httpserver.NewServer(cfg.HttpOptions, na))
	}

	return na, nil
}
