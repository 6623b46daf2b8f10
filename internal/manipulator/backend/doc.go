// Package backend 聚合可选的位图缩放后端，并提供统一的注册入口。
//
// 后端作者需要：
//  1. 在 internal/manipulator/backend/<key>/ 目录下实现 Resampler；
//  2. 在 init() 中调用 MustRegister 注册元数据；
//  3. 在 internal/config/modules.go 中匿名导入该包，使配置校验能够识别新键。
//
// Size、Pixelate 与 Watermark 等操作通过 Resampler 完成缩放，其余像素运算不受后端影响。
package backend
