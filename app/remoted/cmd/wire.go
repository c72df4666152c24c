//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"
	"github.com/lk2023060901/httpremote/pkg/app"
	"github.com/lk2023060901/httpremote/pkg/logger"
)

func InitApp(cfg *Config, l logger.Logger) (app.Application, func(), error) {
	panic(wire.Build(
		// 1. 基础框架 (BaseApp)
		app.ProviderSet,
		provideAppOptions,

		// 2. 可观测性
		provideTracerProvider,
		providePrometheusClient,

		// 3. HTTP 远程调用（服务端 + 出站传输）
		provideInitializer,
		provideTransporter,

		// 4. 业务 actor
		provideServerActor,
		provideWorkerActor,
		provideActors,
		newRemoteServer,

		// 5. 心跳上报
		provideSystemCollector,
		provideReporter,

		// 6. 组装
		provideAppComponents,
		app.InitApp,
	))
}
