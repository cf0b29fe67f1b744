package logging

import (
	"github.com/sirupsen/logrus"

	"github.com/any-hub/zfile/internal/version"
)

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供 doi/file/命中状态字段，供解析与代理日志复用。
func RequestFields(doi, fileName string, cacheHit bool) logrus.Fields {
	fields := logrus.Fields{
		"doi":       doi,
		"cache_hit": cacheHit,
	}
	if fileName != "" {
		fields["file"] = fileName
	}
	return fields
}

// ServiceFields 返回写入每条日志的服务标识。
func ServiceFields() logrus.Fields {
	return logrus.Fields{
		"service": "zfile",
		"version": version.Version,
	}
}
