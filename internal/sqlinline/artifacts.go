package sqlinline

const QSelectSourceImages = `--sql 87a18aa7-4415-4e3d-b4ce-96b39334ea58
select id::text, user_id, storage_key, mime, width, height, created_at
from source_images
where user_id = $1 and id = any($2::text[]::uuid[]);
`

const QInsertAnalysis = `--sql 16cdc0c3-92bc-4fce-b36f-46e2c5fcf449
insert into product_analyses (id, task_id, summary, provider, model, usage, created_at)
values ($1::uuid, $2::uuid, $3::jsonb, $4, $5, $6::jsonb, $7);
`

const QAnalysisByTask = `--sql 282aaed2-a687-4c40-9c53-ed37f460cf23
select id::text, task_id::text, summary, provider, model, usage, created_at
from product_analyses
where task_id = $1::uuid;
`

const QInsertScript = `--sql e59d226e-28ce-4952-94d7-d7c67b3c50ad
insert into scripts (id, task_id, analysis_id, position, title, hook, narration, call_to_action,
                     duration_seconds, provider, model, usage, created_at)
values ($1::uuid, $2::uuid, $3::uuid, $4, $5, $6, $7, $8, $9, $10, $11, $12::jsonb, $13);
`

const QScriptsByTask = `--sql 806309e7-9748-442d-bad7-6bffba793d40
select id::text, task_id::text, analysis_id::text, position, title, hook, narration, call_to_action,
       duration_seconds, provider, model, usage, created_at
from scripts
where task_id = $1::uuid
order by position;
`

const QInsertShot = `--sql 827c12a8-f13e-4f58-9301-0388007028fb
insert into shots (id, task_id, script_id, position, description, camera, duration_seconds, image_prompt,
                   video_prompt, first_frame_id, first_frame_source, last_frame_id, last_frame_source,
                   provider, model, usage, created_at)
values ($1::uuid, $2::uuid, $3::uuid, $4, $5, $6, $7, $8, $9, $10::uuid, $11, $12::uuid, $13, $14, $15,
        $16::jsonb, $17);
`

const QShotsByScript = `--sql 0baef97d-0dff-46ab-8c96-3b17cfd3d803
select id::text, task_id::text, script_id::text, position, description, camera, duration_seconds,
       image_prompt, video_prompt, first_frame_id::text, first_frame_source, last_frame_id::text,
       last_frame_source, provider, model, usage, created_at
from shots
where script_id = $1::uuid
order by position;
`

const clipColumns = `id::text, task_id::text, coalesce(script_id::text, ''), shot_ids::text[], remote_id, provider, model,
       prompt, status, download_status, source_url, storage_key, downloaded_at, error_message,
       duration_seconds, aspect_ratio, first_frame_id::text, first_frame_source, last_frame_id::text,
       last_frame_source, usage, created_at, updated_at`

const QInsertClip = `--sql cfa1ff0b-8836-40c5-9d5c-9e6e5e047351
insert into clips (id, task_id, script_id, shot_ids, remote_id, provider, model, prompt, status,
                   download_status, duration_seconds, aspect_ratio, first_frame_id, first_frame_source,
                   last_frame_id, last_frame_source, usage, created_at, updated_at)
values ($1::uuid, $2::uuid, nullif($3, '')::uuid, $4::text[]::uuid[], $5, $6, $7, $8, $9, $10, $11, $12,
        $13::uuid, $14, $15::uuid, $16, $17::jsonb, $18, $18);
`

const QClipsByTask = `--sql 8de87b39-ea89-42ad-9d92-b62fb44c23cc
select ` + clipColumns + `
from clips
where task_id = $1::uuid
order by created_at, id;
`

const QClipsByIDs = `--sql 2fc9d387-3273-4b68-8970-baf1a2269b52
select ` + clipColumns + `
from clips
where id = any($1::text[]::uuid[]);
`

const QUpdateClipStatus = `--sql 75cc260b-03ed-44af-b21b-947cd0cc5dac
update clips
set status = $2, error_message = coalesce($3::text, error_message), updated_at = now()
where id = $1::uuid;
`

const QMarkClipSucceeded = `--sql 912da2eb-99d3-4d19-b7da-5347663e6cc6
update clips
set status = 'succeeded', source_url = $2, download_status = 'downloading', updated_at = now()
where id = $1::uuid;
`

const QMarkClipDownloaded = `--sql 75c93a15-3157-48d4-be85-400317d7b99a
update clips
set storage_key = $2, downloaded_at = $3, download_status = 'completed', updated_at = now()
where id = $1::uuid;
`

const QMarkClipDownloadFailed = `--sql d3b7ecef-93a7-4c62-867b-a88c2a654179
update clips
set download_status = 'failed', error_message = $2, updated_at = now()
where id = $1::uuid;
`

const QInsertImage = `--sql a2bed2f3-6f9e-46a5-8321-c74867919c53
insert into promo_images (id, task_id, position, storage_key, mime, width, height, prompt, provider, model,
                          usage, created_at)
values ($1::uuid, $2::uuid, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb, $12);
`

const imageColumns = `id::text, task_id::text, position, storage_key, mime, width, height, prompt, provider, model,
       usage, created_at`

const QImagesByTask = `--sql d2f699c5-07e8-4161-92f1-bbaaaed66699
select ` + imageColumns + `
from promo_images
where task_id = $1::uuid
order by position;
`

const QImageByID = `--sql 216d3385-2bcc-4288-9efa-eb6b90e9be5a
select ` + imageColumns + `
from promo_images
where id = $1::uuid;
`

const QStorageKeysByTask = `--sql 8ba50d08-9e12-448f-a07d-c7a77aa4c9eb
select storage_key from promo_images where task_id = $1::uuid
union all
select storage_key from clips where task_id = $1::uuid and storage_key is not null;
`
