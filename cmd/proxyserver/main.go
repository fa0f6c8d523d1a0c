/*
 * Copyright (c) 2024. Shuojiang Liu.
 * Licensed under the MIT License (the "License");
 * you may not use this file except in compliance with the License.
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Command proxyserver wires together the KV engine, write buffer, LRU
// cache, and zset commander family behind a RESP listener, and — when
// Sentinel mode is enabled in config — a second listener presenting the
// cluster as a Sentinel quorum on the configured control port.
package main

import (
	"flag"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/redcon"

	"github.com/kvredis/proxy/command"
	"github.com/kvredis/proxy/config"
	"github.com/kvredis/proxy/kv"
	"github.com/kvredis/proxy/lrucache"
	"github.com/kvredis/proxy/metadata"
	"github.com/kvredis/proxy/metrics"
	"github.com/kvredis/proxy/model"
	"github.com/kvredis/proxy/sentinel"
	"github.com/kvredis/proxy/storageredis"
	"github.com/kvredis/proxy/writebuffer"
	"github.com/kvredis/proxy/zsetcmd"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (defaults built in if omitted)")
	metricsAddr := flag.String("metrics-addr", ":9121", "address to serve /metrics on")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	engine, err := kv.OpenLSMEngine(cfg.StorageOptions())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open kv engine")
	}
	defer func() {
		if err := engine.Close(); err != nil {
			log.Err(err).Msg("failed to close kv engine")
		}
	}()

	registry := prometheus.NewRegistry()
	collector := metrics.NewPrometheus(registry)

	go serveMetrics(*metricsAddr, registry)

	metaStore := metadata.NewKVStore(engine, cfg.MetaCacheCapacity)

	var storageRedis storageredis.Client
	if cfg.Encoding == config.EncodingV1 {
		if cfg.StorageRedisAddr == "" {
			log.Fatal().Msg("encoding v1 requires storage_redis_addr to be set")
		}
		storageRedis = storageredis.Dial(cfg.StorageRedisAddr)
	}

	zsetCtx := zsetcmd.New(
		metaStore,
		engine,
		writebuffer.New[*model.ZSet](),
		lrucache.New[*model.ZSet](cfg.LRUCapacityPerType),
		lrucache.NewHotKeyDetector(cfg.HotKeyWindow, cfg.HotKeyThreshold),
		storageRedis,
		cfg.Encoding,
	)
	zsetCtx.ScanBatchSize = cfg.ScanBatchSize
	zsetCtx.Metrics = collector

	dispatcher := command.NewDispatcher(collector, nil)
	registerZSetCommands(dispatcher, zsetCtx)

	if cfg.Sentinel.Enabled {
		go runSentinel(cfg.Sentinel)
	}

	log.Info().Str("addr", cfg.ListenAddr).Msg("proxy listening")
	err = redcon.ListenAndServe(cfg.ListenAddr,
		dispatcher.Handle,
		func(conn redcon.Conn) bool { return true },
		func(conn redcon.Conn, err error) {},
	)
	if err != nil {
		log.Fatal().Err(err).Msg("proxy server exited")
	}
}

func registerZSetCommands(d *command.Dispatcher, c *zsetcmd.Context) {
	d.RegisterFunc("zadd", c.ZAdd)
	d.RegisterFunc("zrem", c.ZRem)
	d.RegisterFunc("zcard", c.ZCard)
	d.RegisterFunc("zscore", c.ZScore)
	d.RegisterFunc("zmscore", c.ZMScore)
	d.RegisterFunc("zincrby", c.ZIncrBy)
	d.RegisterFunc("zrange", c.ZRange)
	d.RegisterFunc("zrevrange", c.ZRevRange)
	d.RegisterFunc("zrangebyscore", c.ZRangeByScore)
	d.RegisterFunc("zrevrangebyscore", c.ZRevRangeByScore)
	d.RegisterFunc("zrangebylex", c.ZRangeByLex)
	d.RegisterFunc("zrevrangebylex", c.ZRevRangeByLex)
	d.RegisterFunc("zrank", c.ZRank)
	d.RegisterFunc("zrevrank", c.ZRevRank)
	d.RegisterFunc("zremrangebyrank", c.ZRemRangeByRank)
	d.RegisterFunc("zremrangebyscore", c.ZRemRangeByScore)
	d.RegisterFunc("zremrangebylex", c.ZRemRangeByLex)
}

func runSentinel(cfg config.SentinelConfig) {
	current := sentinel.ProxyNode{Host: cfg.CurrentNodeHost, Port: cfg.CurrentNodePort, CPort: cfg.CurrentNodeCPort}

	provider, err := sentinel.NewStaticProvider(cfg.Nodes)
	if err != nil {
		log.Fatal().Err(err).Msg("sentinel: invalid node list")
	}

	dispatcher := sentinel.New(cfg, current, provider)
	dispatcher.Start()
	defer dispatcher.Stop()

	handler := sentinel.NewHandler(dispatcher, cfg)

	log.Info().Str("addr", current.CAddr()).Msg("sentinel control port listening")
	err = redcon.ListenAndServe(current.CAddr(), handler.Handle, handler.Accept, handler.Closed)
	if err != nil {
		log.Fatal().Err(err).Msg("sentinel server exited")
	}
}

func serveMetrics(addr string, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Err(err).Msg(fmt.Sprintf("metrics server on %s exited", addr))
	}
}
