// Copyright (c) CollabEngine Authors.
// Licensed under the MIT License.

/*
包 migration 管理结果记录表（collab_records）的版本化迁移，
基于 golang-migrate 实现，支持 PostgreSQL 与 MySQL。

SQL 文件通过 embed.FS 内嵌在 migrations/<dialect>/ 下。
SQLite 部署不走版本化迁移，表结构由 store.GormStore 的 AutoMigrate 维护，
此时 NewMigrator 返回 ErrAutoMigrateOnly。

  - Migrator / DefaultMigrator：Up/Down/Steps/Force/Version/Status/Info。
  - CLI：collabengine migrate 子命令的终端输出层。
  - AvailableMigrations / ParseDatabaseType / BuildDatabaseURL：辅助函数。
*/
package migration
