// Copyright (c) lessonpipe Authors.
// Licensed under the MIT License.

/*
包 lesson 定义课程与故事两类生成内容的输出契约。

Schema 与 StorySchema 返回全局共享、只读的 structured.Schema，
Lesson 与 Story 是对应的强类型记录，可通过 Record.Decode 或
structured.RunTyped 直接获得。Lookup 按名称查找，供命令行使用。
*/
package lesson
