package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供单次图片请求的公共字段。
func RequestFields(requestID, path, cacheKey string, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"request_id": requestID,
		"path":       path,
		"cache_key":  cacheKey,
		"cache_hit":  cacheHit,
	}
}

// StoreFields 描述存储后端，用于启动日志。
func StoreFields(role, description string) logrus.Fields {
	return logrus.Fields{
		"store":   role,
		"backend": description,
	}
}
