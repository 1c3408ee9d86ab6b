package sqlinline

const taskColumns = `id::text, user_id, kind, source_image_ids::text[], params, status, error_message, job_id,
       created_at, started_at, completed_at, updated_at`

const QInsertTask = `--sql 880db758-cfe7-4124-93d5-2ac2bd60c4b8
insert into tasks (id, user_id, kind, source_image_ids, params, status, created_at, updated_at)
values ($1::uuid, $2, $3, $4::text[]::uuid[], $5::jsonb, $6, $7, $7);
`

const QGetTaskByID = `--sql 2e455872-2968-4414-9345-675237cf130f
select ` + taskColumns + `
from tasks
where id = $1::uuid;
`

const QGetTaskForUser = `--sql 1d6b86dd-1cd5-4b77-bf84-475964e2d0f4
select ` + taskColumns + `
from tasks
where id = $1::uuid and user_id = $2;
`

const QListTasksByUser = `--sql adf9f706-e066-4d79-94d9-f4b5ea342fe4
select ` + taskColumns + `
from tasks
where user_id = $1
order by created_at desc
limit $2 offset $3;
`

// QUpdateTaskStatus applies the same stamping rules as domain.Task.ApplyStatus
// and leaves terminal tasks untouched unless the status repeats.
const QUpdateTaskStatus = `--sql 7c132edc-0957-48ae-bce9-48019f4c7670
update tasks
set status        = $2::text,
    error_message = coalesce($3::text, error_message),
    started_at    = case
                      when $2::text in ('analyzing', 'scripting', 'storyboarding', 'generating_frames',
                                        'generating_videos', 'generating_images', 'compositing')
                           and $3::text is null and started_at is null then now()
                      else started_at
                    end,
    completed_at  = case
                      when $2::text in ('completed', 'failed', 'cancelled') then coalesce(completed_at, now())
                      else null
                    end,
    updated_at    = now()
where id = $1::uuid
  and (status not in ('completed', 'failed', 'cancelled') or status = $2::text);
`

const QGetTaskStatus = `--sql e024cd04-fdaf-4146-bd22-6e0524d3e8a0
select status
from tasks
where id = $1::uuid;
`

const QSetTaskJobID = `--sql 0740e5bf-0f93-4ae0-bc83-7e578446566f
update tasks
set job_id = $2, updated_at = now()
where id = $1::uuid;
`

const QResetTaskForRetry = `--sql 0fa3b7f4-f610-4ece-822e-03e09b412ce9
update tasks
set status        = 'pending',
    error_message = null,
    started_at    = null,
    completed_at  = null,
    job_id        = null,
    updated_at    = now()
where id = $1::uuid and status = 'failed';
`

const QDeleteTask = `--sql 51beaf87-3618-4770-be4c-3b6a72003b77
delete from tasks
where id = $1::uuid and user_id = $2;
`
