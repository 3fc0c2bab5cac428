package redis

const (
	// upsertUsageScript replaces a daily usage record and maintains its indexes
	upsertUsageScript = `
local usage_key = KEYS[1]     -- screentime:usage:{date}:{package}
local index_key = KEYS[2]     -- screentime:usage:index:{date}
local dates_key = KEYS[3]     -- screentime:usage:dates
local app_key = KEYS[4]       -- screentime:usage:app:{package}

local package = ARGV[1]
local app_name = ARGV[2]
local date = ARGV[3]
local total = ARGV[4]
local last_used = ARGV[5]
local launch_count = ARGV[6]
local score = tonumber(ARGV[7])

redis.call('HSET', usage_key,
  'package', package,
  'app_name', app_name,
  'date', date,
  'total_time_ms', total,
  'last_used_ms', last_used,
  'launch_count', launch_count
)

redis.call('SADD', index_key, package)
redis.call('ZADD', dates_key, score, date)
redis.call('ZADD', app_key, score, date)

return 'OK'
`

	// deleteUsageBeforeScript removes every record dated strictly before the cutoff score
	deleteUsageBeforeScript = `
local dates_key = KEYS[1]     -- screentime:usage:dates

local cutoff = ARGV[1]
local prefix = ARGV[2]        -- screentime:usage:

local dates = redis.call('ZRANGEBYSCORE', dates_key, '-inf', '(' .. cutoff)
local deleted = 0

for _, date in ipairs(dates) do
  local index_key = prefix .. 'index:' .. date
  local packages = redis.call('SMEMBERS', index_key)
  for _, package in ipairs(packages) do
    deleted = deleted + redis.call('DEL', prefix .. date .. ':' .. package)
    redis.call('ZREM', prefix .. 'app:' .. package, date)
  end
  redis.call('DEL', index_key)
  redis.call('ZREM', dates_key, date)
end

return deleted
`
)
