// Package biz 实现模块手册问答的业务逻辑：语言识别、问题向量化、
// 回答生成、查询缓存、索引以及组合它们的问答服务。
package biz
