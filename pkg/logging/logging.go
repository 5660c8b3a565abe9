// Package logging 统一配置全局 phuslu/log 日志器。
package logging

import (
	"os"

	"github.com/phuslu/log"
)

// Setup 按级别和运行环境设置全局日志器：dev 使用彩色控制台输出，其余环境输出 JSON
func Setup(level, env string) {
	logger := log.Logger{
		Level:      log.ParseLevel(level),
		Caller:     1,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		Writer:     &log.IOWriter{Writer: os.Stderr},
	}
	if env == "" || env == "dev" {
		logger.Writer = &log.ConsoleWriter{ColorOutput: true, QuoteString: true, EndWithMessage: true}
	}
	log.DefaultLogger = logger
}
