// Copyright 2025 Sorint.lab
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied
// See the License for the specific language governing permissions and
// limitations under the License.

package db

var ddlPostgres = []string{
	"create table if not exists resourcelock (id varchar NOT NULL, revision bigint NOT NULL, creation_time timestamptz NOT NULL, update_time timestamptz NOT NULL, state varchar NOT NULL, owner_id varchar, operation varchar, PRIMARY KEY (id))",
	"create index if not exists resourcelock_owner_id_idx on resourcelock(owner_id)",
}

var ddlSqlite3 = []string{
	"create table if not exists resourcelock (id varchar NOT NULL, revision bigint NOT NULL, creation_time timestamp NOT NULL, update_time timestamp NOT NULL, state varchar NOT NULL, owner_id varchar, operation varchar, PRIMARY KEY (id))",
	"create index if not exists resourcelock_owner_id_idx on resourcelock(owner_id)",
}
