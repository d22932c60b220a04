package sqlinline

const QKVGet = `--sql 3d0c8f4e-6b1a-4f52-9c7e-1a2b8e4d5f60
select value
from kv_entries
where namespace = $1::text and key = $2::text
limit 1;
`

const QKVUpsert = `--sql 8a4e2c91-0f3d-4b7a-a65e-2c9d1f7b3e84
insert into kv_entries(namespace, key, value, updated_at)
values ($1::text, $2::text, $3::bytea, now())
on conflict (namespace, key) do update
set value = excluded.value,
    updated_at = now();
`

const QKVDelete = `--sql c7f1a3b5-92e4-4d08-8b6c-5e0a9d2f4c17
delete from kv_entries
where namespace = $1::text and key = $2::text;
`

const QKVList = `--sql 5b9d2e70-4a1c-4e3f-b8d6-7f0c3a1e9b25
select key, value, updated_at
from kv_entries
where namespace = $1::text
order by key asc;
`

const QKVClear = `--sql e2a6c4d8-1b5f-4a93-9e07-3c8b6d0f2a41
delete from kv_entries
where namespace = $1::text;
`
